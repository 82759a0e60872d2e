// Package results pulls OBX observations out of a received HL7 message and
// forwards them as JSON to an HTTP endpoint.
package results

import (
	"time"

	"hl7tools/internal/hl7"
)

// Observation is one OBX result with the patient and order context that
// precedes it in the message.
type Observation struct {
	PatientID       string `json:"patient_id"`
	PatientName     string `json:"patient_name"`
	AccessionNumber string `json:"accession_number"`
	MessageID       string `json:"message_id"`
	ObservationID   string `json:"observation_id"`
	ValueType       string `json:"value_type"`
	TestCode        string `json:"test_code"`
	TestName        string `json:"test_name"`
	Value           string `json:"value"`
	Units           string `json:"units"`
	ReferenceRange  string `json:"reference_range"`
	AbnormalFlags   string `json:"abnormal_flags"`
	ResultStatus    string `json:"result_status"`
	Timestamp       string `json:"timestamp"`
}

// Extract walks the message in order; PID and OBR set the context for the
// OBX segments that follow them.
func Extract(msg *hl7.Message) []Observation {
	d := msg.Delims
	var out []Observation
	var patientID, patientName, accessionNumber string

	for _, seg := range msg.Segments {
		switch seg.Name {
		case "PID":
			patientID = seg.Field(3, d)
			patientName = seg.Field(5, d)

		case "OBR":
			accessionNumber = seg.Field(2, d)

		case "OBX":
			out = append(out, Observation{
				PatientID:       patientID,
				PatientName:     patientName,
				AccessionNumber: accessionNumber,
				MessageID:       msg.ControlID(),
				ObservationID:   seg.Field(1, d),
				ValueType:       seg.Field(2, d),
				TestCode:        seg.Component(3, 1, d),
				TestName:        seg.Component(3, 2, d),
				Value:           seg.Field(5, d),
				Units:           seg.Field(6, d),
				ReferenceRange:  seg.Field(7, d),
				AbnormalFlags:   seg.Field(8, d),
				ResultStatus:    seg.Field(11, d),
				Timestamp:       ParseDateTime(seg.Field(14, d), time.Now),
			})
		}
	}
	return out
}

// ParseDateTime renders an HL7 date/time as RFC 3339. Values shorter than a
// date, or unparseable, fall back to now.
func ParseDateTime(hl7DateTime string, now func() time.Time) string {
	if len(hl7DateTime) >= 14 {
		if t, err := time.Parse("20060102150405", hl7DateTime[:14]); err == nil {
			return t.Format(time.RFC3339)
		}
	}
	if len(hl7DateTime) >= 8 {
		if t, err := time.Parse("20060102", hl7DateTime[:8]); err == nil {
			return t.Format(time.RFC3339)
		}
	}
	return now().Format(time.RFC3339)
}
