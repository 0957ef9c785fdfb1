package events

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// doneSentinel is emitted by some producers before closing the stream; it
// carries no event and is skipped.
const doneSentinel = "[DONE]"

// Decoder turns a raw line-oriented event stream into typed chat events.
//
// The wire format is `event: <name>` / `data: <json>` records. Chunk
// boundaries are arbitrary: a partial trailing line is held back until the
// next read completes it. An event name persists until overwritten, so each
// data line is decoded against the last seen name; blank lines are
// separators and are ignored. Malformed data lines and unknown event names
// are logged and skipped so a single bad frame never kills the run.
type Decoder struct {
	reader    *bufio.Reader
	eventName string
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: bufio.NewReader(r)}
}

// Next returns the next decoded event, io.EOF at end of stream, or the
// transport error that interrupted reading. Decode-level problems are
// swallowed; only transport-level failures surface.
func (d *Decoder) Next() (Event, error) {
	for {
		line, readErr := d.reader.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, errors.Wrap(readErr, "reading event stream")
		}

		line = strings.TrimRight(line, "\r\n")

		if line != "" {
			preview := line
			if len(preview) > 200 {
				preview = preview[:200] + "…"
			}
			log.Trace().Str("line", preview).Msg("stream line")
		}

		ev, ok := d.consumeLine(line)
		if ok {
			return ev, nil
		}

		if readErr == io.EOF {
			return nil, io.EOF
		}
	}
}

// consumeLine applies a single complete line to the decoder state, returning
// an event when the line produced one.
func (d *Decoder) consumeLine(line string) (Event, bool) {
	if line == "" {
		return nil, false
	}

	if strings.HasPrefix(line, "event:") {
		d.eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		log.Trace().Str("event", d.eventName).Msg("stream event name")
		return nil, false
	}

	if strings.HasPrefix(line, "data:") {
		body := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if body == doneSentinel {
			return nil, false
		}
		if d.eventName == "" {
			log.Debug().Int("len", len(body)).Msg("data line before any event name, skipping")
			return nil, false
		}
		ev, err := ParseEvent(d.eventName, []byte(body))
		if err != nil {
			if errors.Is(err, ErrUnknownEvent) {
				log.Debug().Str("event", d.eventName).Msg("unknown event name, skipping")
			} else {
				log.Debug().Err(err).Str("event", d.eventName).Int("raw_len", len(body)).Msg("failed to decode event payload, skipping")
			}
			return nil, false
		}
		return ev, true
	}

	// comment or unrecognized field, ignore
	return nil, false
}
