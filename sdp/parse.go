package sdp

import (
	"regexp"
	"strconv"
	"strings"
)

var lineRe = regexp.MustCompile(`^.=.*$`)

// Parse decodes an SDP document. It tolerates both LF and CRLF line
// endings, per §4.7.
func Parse(text string) (*Session, error) {
	s := &Session{Attributes: make(map[string]string)}
	var current *Media

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for _, line := range lines {
		if line == "" {
			continue
		}
		if !lineRe.MatchString(line) {
			return nil, ErrInvalidLine
		}

		key := line[0]
		value := line[2:]

		switch key {
		case 'v':
			s.Version = value
		case 'o':
			fields := strings.Fields(value)
			if len(fields) < 6 {
				return nil, ErrInvalidLine
			}
			if len(fields) > 6 {
				logger.Sugar().Warnw("sdp: o= line has more than 6 fields, keeping the first 6", "fields", len(fields))
			}
			s.Origin = Origin{
				Username:       fields[0],
				SessionID:      fields[1],
				SessionVersion: fields[2],
				NetType:        fields[3],
				AddressType:    AddressType(fields[4]),
				UnicastAddress: fields[5],
			}
		case 's':
			s.SessionName = value
		case 'c':
			fields := strings.Fields(value)
			if len(fields) < 3 {
				return nil, ErrInvalidLine
			}
			if len(fields) > 3 {
				logger.Sugar().Warnw("sdp: c= line has more than 3 fields, keeping the first 3", "fields", len(fields))
			}
			// c= may appear at media level in the wider RFC, but this
			// codec only ever generates it at session level; still accept
			// it here rather than fail parsing.
			s.Connection = ConnectionData{NetType: fields[0], AddressType: AddressType(fields[1]), ConnectionAddress: fields[2]}
		case 't':
			fields := strings.Fields(value)
			if len(fields) < 2 {
				return nil, ErrInvalidLine
			}
			s.Timing = Timing{StartTime: fields[0], StopTime: fields[1]}
		case 'm':
			fields := strings.Fields(value)
			if len(fields) < 4 {
				return nil, ErrInvalidLine
			}
			m := &Media{
				Media:      fields[0],
				Proto:      fields[2],
				Fmt:        fields[3],
				Attributes: make(map[string]string),
				FmtpParams: make(map[string]string),
			}
			if port, err := strconv.Atoi(fields[1]); err == nil {
				m.Port = port
			}
			if isRTPAVProfile(m.Proto) {
				if pt, err := strconv.Atoi(m.Fmt); err == nil {
					m.PayloadType = pt
				} else {
					logger.Sugar().Warnw("sdp: m= line has non-numeric fmt for RTP/AVP(P) profile", "proto", m.Proto, "fmt", m.Fmt)
				}
			}
			s.MediaSections = append(s.MediaSections, m)
			current = m
		case 'a':
			parseAttribute(value, current, s)
		case 'b':
			parts := strings.SplitN(value, ":", 2)
			if len(parts) != 2 {
				return nil, ErrInvalidLine
			}
			if current != nil {
				current.Bandwidth = parts[1]
			}
		default:
			logger.Sugar().Debugw("sdp: ignoring unrecognized line type", "key", string(key))
		}
	}
	return s, nil
}

func parseAttribute(value string, current *Media, s *Session) {
	key, rest, hasColon := strings.Cut(value, ":")

	attrs := s.Attributes
	if current != nil {
		attrs = current.Attributes
	}

	if !hasColon {
		attrs[value] = "true"
		return
	}
	attrs[key] = rest

	switch key {
	case "rtpmap":
		// "<pt> <enc>/<rate>[/<ch>]"
		fields := strings.Fields(rest)
		if len(fields) != 2 || current == nil {
			return
		}
		parts := strings.Split(fields[1], "/")
		if len(parts) >= 2 {
			if rate, err := strconv.Atoi(parts[1]); err == nil {
				current.ClockRate = rate
			}
		}
		if len(parts) >= 3 {
			if ch, err := strconv.Atoi(parts[2]); err == nil {
				current.AudioChannels = ch
			}
		}
	case "fmtp":
		if current == nil {
			return
		}
		_, params, ok := strings.Cut(rest, " ")
		if !ok {
			params = rest
		}
		for _, kv := range strings.Split(params, ";") {
			kv = strings.TrimSpace(kv)
			if kv == "" {
				continue
			}
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			current.FmtpParams[strings.ToLower(k)] = v
		}
	}
}
