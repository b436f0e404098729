package meevo

import (
	"encoding/json"
	"strings"
)

// ClientSummary is one entry of the paged client listing.
type ClientSummary struct {
	ClientID           string `json:"clientId"`
	FirstName          string `json:"firstName"`
	LastName           string `json:"lastName"`
	PrimaryPhoneNumber string `json:"primaryPhoneNumber,omitempty"`
	EmailAddress       string `json:"emailAddress,omitempty"`
}

// FullName joins first and last name the way staff see it in Meevo.
func (c ClientSummary) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// ClientDetail is the full client record returned by the detail endpoint.
type ClientDetail struct {
	ClientID           string `json:"clientId"`
	FirstName          string `json:"firstName"`
	LastName           string `json:"lastName"`
	PrimaryPhoneNumber string `json:"primaryPhoneNumber,omitempty"`
	EmailAddress       string `json:"emailAddress,omitempty"`
	GuardianID         string `json:"guardianId,omitempty"`
	IsMinor            bool   `json:"isMinor"`
}

// FullName joins first and last name.
func (c ClientDetail) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// BookedService is one service line of a client's booking history.
type BookedService struct {
	AppointmentID          string          `json:"appointmentId"`
	AppointmentServiceID   string          `json:"appointmentServiceId"`
	StartTime              string          `json:"startTime"`
	ServicingEndTime       string          `json:"servicingEndTime"`
	ServiceID              string          `json:"serviceId"`
	EmployeeID             string          `json:"employeeId"`
	ConcurrencyCheckDigits json.RawMessage `json:"concurrencyCheckDigits,omitempty"`
	IsCancelled            bool            `json:"isCancelled"`
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type,omitempty"`
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

type errorBody struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}
