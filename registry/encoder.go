package registry

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"time"
)

const recordFormatVersionCurrent = 1

var errFieldTooLong = errors.New("record field too long")

// Encode serialises the lease fields of rec. AccountID and Generation are
// not part of the blob: the account is the key and the generation lives in a
// companion counter.
//
//	[version:1][leaseLen:2][lease][labelLen:2][label][issuedAtUnixNano:8]
func Encode(rec Record) ([]byte, error) {
	if len(rec.LeaseID) > math.MaxUint16 || len(rec.DeviceLabel) > math.MaxUint16 {
		return nil, errFieldTooLong
	}

	var buf bytes.Buffer
	buf.Grow(1 + 2 + len(rec.LeaseID) + 2 + len(rec.DeviceLabel) + 8)

	buf.WriteByte(recordFormatVersionCurrent)

	writeString(&buf, rec.LeaseID)
	writeString(&buf, rec.DeviceLabel)

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(rec.IssuedAt.UnixNano()))
	buf.Write(ts[:])

	return buf.Bytes(), nil
}

// Decode parses a blob produced by Encode.
func Decode(data []byte) (Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return Record{}, err
	}
	if version != recordFormatVersionCurrent {
		return Record{}, errors.New("invalid record version")
	}

	var rec Record

	if rec.LeaseID, err = readString(reader); err != nil {
		return Record{}, err
	}
	if rec.LeaseID == "" {
		return Record{}, errors.New("empty lease id")
	}
	if rec.DeviceLabel, err = readString(reader); err != nil {
		return Record{}, err
	}

	var ts [8]byte
	if _, err := io.ReadFull(reader, ts[:]); err != nil {
		return Record{}, err
	}
	rec.IssuedAt = time.Unix(0, int64(binary.BigEndian.Uint64(ts[:]))).UTC()

	if reader.Len() != 0 {
		return Record{}, errors.New("trailing record bytes")
	}

	return rec, nil
}

func writeString(buf *bytes.Buffer, s string) {
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var n [2]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return "", err
	}
	size := int(binary.BigEndian.Uint16(n[:]))
	if size > r.Len() {
		return "", io.ErrUnexpectedEOF
	}
	out := make([]byte, size)
	if _, err := io.ReadFull(r, out); err != nil {
		return "", err
	}
	return string(out), nil
}
