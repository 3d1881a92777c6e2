// Package pluginmsg decodes the events backend servers send over the plugin message channel.
//
// A frame is a tag string followed by the tag's fields, written with Java's
// DataOutput: strings as a big-endian uint16 byte length and modified UTF-8,
// booleans as a single byte.
package pluginmsg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"
)

// Tags of known events
const (
	TagPlayerDeath       = "PlayerDeath"
	TagPlayerRespawn     = "PlayerRespawn"
	TagPlayerAdvancement = "PlayerAdvancement"
)

var (
	ErrShortBuffer = errors.New("plugin message truncated")
	ErrInvalidUTF  = errors.New("malformed modified UTF-8")
	ErrTooLong     = errors.New("string too long for plugin message")
)

// Message is one decoded plugin message
type Message interface {
	Tag() string
}

// PlayerDeath is sent when a player dies, with the server's death message
type PlayerDeath struct {
	Message string
}

// PlayerRespawn is sent when a player respawns
type PlayerRespawn struct{}

// PlayerAdvancement is sent when a player completes an advancement
type PlayerAdvancement struct {
	Type        string // "Advancement Made!", "Goal Reached!" or "Challenge Complete!"
	Challenge   bool
	Title       string
	Description string
}

// Unknown carries a frame with a tag this package does not know
type Unknown struct {
	Name string
	Raw  []byte // bytes after the tag
}

func (PlayerDeath) Tag() string       { return TagPlayerDeath }
func (PlayerRespawn) Tag() string     { return TagPlayerRespawn }
func (PlayerAdvancement) Tag() string { return TagPlayerAdvancement }
func (u Unknown) Tag() string         { return u.Name }

// Decode parses one plugin message frame
func Decode(data []byte) (Message, error) {
	r := reader{buf: data}
	tag, err := r.readUTF()
	if err != nil {
		return nil, fmt.Errorf("reading tag: %w", err)
	}

	switch tag {
	case TagPlayerDeath:
		msg, err := r.readUTF()
		if err != nil {
			return nil, fmt.Errorf("reading death message: %w", err)
		}
		return PlayerDeath{Message: msg}, nil

	case TagPlayerRespawn:
		return PlayerRespawn{}, nil

	case TagPlayerAdvancement:
		var adv PlayerAdvancement
		if adv.Type, err = r.readUTF(); err != nil {
			return nil, fmt.Errorf("reading advancement type: %w", err)
		}
		if adv.Challenge, err = r.readBool(); err != nil {
			return nil, fmt.Errorf("reading challenge flag: %w", err)
		}
		if adv.Title, err = r.readUTF(); err != nil {
			return nil, fmt.Errorf("reading advancement title: %w", err)
		}
		if adv.Description, err = r.readUTF(); err != nil {
			return nil, fmt.Errorf("reading advancement description: %w", err)
		}
		return adv, nil

	default:
		return Unknown{Name: tag, Raw: append([]byte(nil), data[r.off:]...)}, nil
	}
}

// Encode writes a message the way a backend server does
func Encode(m Message) ([]byte, error) {
	var w writer
	if err := w.writeUTF(m.Tag()); err != nil {
		return nil, err
	}

	switch msg := m.(type) {
	case PlayerDeath:
		if err := w.writeUTF(msg.Message); err != nil {
			return nil, err
		}
	case PlayerRespawn:
	case PlayerAdvancement:
		if err := w.writeUTF(msg.Type); err != nil {
			return nil, err
		}
		w.writeBool(msg.Challenge)
		if err := w.writeUTF(msg.Title); err != nil {
			return nil, err
		}
		if err := w.writeUTF(msg.Description); err != nil {
			return nil, err
		}
	case Unknown:
		w.buf = append(w.buf, msg.Raw...)
	default:
		return nil, fmt.Errorf("cannot encode %T", m)
	}
	return w.buf, nil
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) readBool() (bool, error) {
	if r.off >= len(r.buf) {
		return false, ErrShortBuffer
	}
	b := r.buf[r.off]
	r.off++
	return b != 0, nil
}

func (r *reader) readUTF() (string, error) {
	if len(r.buf)-r.off < 2 {
		return "", ErrShortBuffer
	}
	n := int(binary.BigEndian.Uint16(r.buf[r.off:]))
	r.off += 2
	if len(r.buf)-r.off < n {
		return "", ErrShortBuffer
	}
	s, err := decodeModifiedUTF8(r.buf[r.off : r.off+n])
	if err != nil {
		return "", err
	}
	r.off += n
	return s, nil
}

// decodeModifiedUTF8 handles the two ways Java differs from UTF-8:
// NUL is two bytes and characters outside the BMP are surrogate pairs
func decodeModifiedUTF8(b []byte) (string, error) {
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", ErrInvalidUTF
			}
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", ErrInvalidUTF
			}
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			return "", ErrInvalidUTF
		}
	}
	return string(utf16.Decode(units)), nil
}

type writer struct {
	buf []byte
}

func (w *writer) writeBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *writer) writeUTF(s string) error {
	var enc []byte
	for _, u := range utf16.Encode([]rune(s)) {
		switch {
		case u != 0 && u < 0x80:
			enc = append(enc, byte(u))
		case u < 0x800:
			enc = append(enc, 0xC0|byte(u>>6), 0x80|byte(u&0x3F))
		default:
			enc = append(enc, 0xE0|byte(u>>12), 0x80|byte(u>>6&0x3F), 0x80|byte(u&0x3F))
		}
	}
	if len(enc) > 0xFFFF {
		return ErrTooLong
	}
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(len(enc)))
	w.buf = append(w.buf, enc...)
	return nil
}
