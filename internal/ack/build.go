package ack

import (
	"fmt"
	"strings"
	"time"

	"hl7tools/internal/hl7"
)

// Build answers msg with an acknowledgment carrying code and an optional
// text. Sending and receiving application/facility are swapped and MSA-2
// echoes the original control id.
func Build(msg *hl7.Message, code, text, controlID string, now time.Time) (*hl7.Message, error) {
	d := msg.Delims
	sep := string(d.Field)

	msh := msg.Segment("MSH")
	field := func(i int) string { return msh.Field(i, d) }

	trigger := msh.Component(9, 2, d)
	msgType := "ACK"
	if trigger != "" {
		msgType += string(d.Component) + trigger
	}

	processingID := field(11)
	if processingID == "" {
		processingID = "P"
	}

	header := strings.Join([]string{
		"MSH",
		field(2),
		field(5),
		field(6),
		field(3),
		field(4),
		now.Format("20060102150405"),
		"",
		msgType,
		controlID,
		processingID,
		field(12),
	}, sep)

	resp, err := hl7.Parse(fmt.Sprintf("%s\rMSA%s%s%s%s\r", header, sep, code, sep, msg.ControlID()))
	if err != nil {
		return nil, err
	}
	if text != "" {
		if err := resp.SetValue("MSA", 3, text); err != nil {
			return nil, fmt.Errorf("ack text: %w", err)
		}
	}
	return resp, nil
}
