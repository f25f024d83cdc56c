package models

import "time"

// Question is one interview prompt.
type Question struct {
	ID        int64     `json:"id"`
	Data      string    `json:"data"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}
