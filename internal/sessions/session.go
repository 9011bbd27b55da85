package sessions

import "time"

// Session is a signed-in browser session issued by the account service.
// Only the account id is consumed here, to attribute uploads.
type Session struct {
	ID        string    `json:"id"`
	AccountID int64     `json:"accountId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
