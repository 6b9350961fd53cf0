package dto

// ProfileUpdateRequest only changes the fields that are sent.
type ProfileUpdateRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,max=100"`
	Picture     *string `json:"picture" validate:"omitempty,url,max=500"`
	Gender      *string `json:"gender" validate:"omitempty,max=20"`
	Location    *string `json:"location" validate:"omitempty,max=100"`
	Website     *string `json:"website" validate:"omitempty,url,max=255"`
	Bio         *string `json:"bio" validate:"omitempty,max=2000"`
}
