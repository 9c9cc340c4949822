package model

import "time"

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Phone        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Card is a public business-card profile. CardID is the externally visible
// identifier; ID is the storage row key and never leaves the server.
type Card struct {
	ID              string
	UserID          string
	CardID          string
	Name            string
	Email           string
	Phone           string
	Company         string
	Designation     string
	Website         string
	SocialLinks     []string
	ProfileImage    string
	BackgroundColor string
	TextColor       string
	IsActive        bool
	ScanCount       int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ScanLog rows are append-only; they are never updated after insert.
type ScanLog struct {
	ID        string
	CardID    string
	ScannedBy *string
	Latitude  *float64
	Longitude *float64
	Device    *string
	IPAddress *string
	Timestamp time.Time
}

type DailyScanCount struct {
	Date  string
	Count int64
}
