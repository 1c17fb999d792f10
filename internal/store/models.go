package store

import "time"

type ClientIdentity struct {
	ID         string `json:"id"`
	DeviceName string `json:"deviceName"`
}

// AdminClaim is the content of the single admin slot.
type AdminClaim struct {
	AdminID   string    `json:"adminId"`
	AdminName string    `json:"adminName"`
	ClaimedAt time.Time `json:"claimedAt"`
}

type Submission struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Gender     string    `json:"gender"`
	BirthDate  string    `json:"birthDate"`
	Address    string    `json:"address"`
	SocialLink string    `json:"socialLink"`
	Phone      string    `json:"phone"`
	Subject    string    `json:"subject"`
	OwnerID    string    `json:"ownerId,omitempty"`
	OwnerName  string    `json:"ownerName,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
