package models

import (
	"strings"
	"time"
)

type Customer struct {
	ID             uint64
	DocumentTypeID uint64
	DocumentNumber string
	FirstName      string
	LastName       string
	Phone          *string
	Email          *string
	Address        *string
	FirstSeenAt    time.Time
	LastSeenAt     time.Time
	TotalVisits    int32
	AuthExternalID *uint64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// CustomerInput carries the fields used when a customer is first seen at the gate.
type CustomerInput struct {
	DocumentTypeID uint64
	DocumentNumber string
	FullName       string
	Phone          string
	Email          string
}

// NormalizeDocument is the natural-key form of a document number.
func NormalizeDocument(number string) string {
	return strings.ToUpper(strings.TrimSpace(number))
}

// SplitName splits free text into first and last name on the first run of whitespace.
func SplitName(full string) (first, last string) {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

// NewCustomer builds an unsaved customer from gate input.
func NewCustomer(in CustomerInput, now time.Time) *Customer {
	c := &Customer{
		DocumentTypeID: in.DocumentTypeID,
		DocumentNumber: NormalizeDocument(in.DocumentNumber),
		FirstSeenAt:    now,
		LastSeenAt:     now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	c.FirstName, c.LastName = SplitName(in.FullName)
	if p := strings.TrimSpace(in.Phone); p != "" {
		c.Phone = &p
	}
	if e := strings.ToLower(strings.TrimSpace(in.Email)); e != "" {
		c.Email = &e
	}
	return c
}

func (c *Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

func (c *Customer) IsDeleted() bool {
	return c.DeletedAt != nil
}

func (c *Customer) RegisterVisit(now time.Time) {
	c.TotalVisits++
	c.LastSeenAt = now
	c.UpdatedAt = now
}
