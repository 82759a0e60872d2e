// Package ack classifies HL7 acknowledgment messages and builds them for
// the receiving side.
package ack

import (
	"strings"

	"hl7tools/internal/hl7"
)

// Outcome is the classification of an acknowledgment.
type Outcome int

const (
	// Accepted is MSA-1 "AA".
	Accepted Outcome = iota
	// Rejected is MSA-1 "AR".
	Rejected
	// Error is any other acknowledgment code.
	Error
	// MalformedResponse means the response carried no MSA segment.
	MalformedResponse
)

// String returns the string representation of Outcome
func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Error:
		return "error"
	case MalformedResponse:
		return "malformed response"
	default:
		return "unknown"
	}
}

// Acknowledgment codes.
const (
	CodeAccept = "AA"
	CodeReject = "AR"
	CodeError  = "AE"
)

// Classify inspects MSA-1 of resp. A nil response is malformed.
func Classify(resp *hl7.Message) Outcome {
	if resp == nil {
		return MalformedResponse
	}
	msa := resp.Segment("MSA")
	if msa == nil {
		return MalformedResponse
	}
	switch strings.TrimSpace(msa.Field(1, resp.Delims)) {
	case CodeAccept:
		return Accepted
	case CodeReject:
		return Rejected
	default:
		return Error
	}
}

// Detail is the human-facing content of an acknowledgment.
type Detail struct {
	Code      string
	ControlID string
	Text      string
	Errors    []string
}

// Details extracts MSA-1, MSA-2, MSA-3 and ERR segments from resp.
func Details(resp *hl7.Message) Detail {
	var d Detail
	if resp == nil {
		return d
	}
	if msa := resp.Segment("MSA"); msa != nil {
		d.Code = msa.Field(1, resp.Delims)
		d.ControlID = msa.Field(2, resp.Delims)
		d.Text = msa.Field(3, resp.Delims)
	}
	for _, e := range resp.SegmentsNamed("ERR") {
		var parts []string
		for i := range e.Fields {
			if v := e.Field(i+1, resp.Delims); v != "" {
				parts = append(parts, v)
			}
		}
		d.Errors = append(d.Errors, strings.Join(parts, " "))
	}
	return d
}
