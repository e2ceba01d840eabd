package record

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const recordVersionV1 = 1

// maxEncodedAttempts caps how many timestamps a single encoded record may
// carry. Decoding rejects anything larger as corrupt rather than allocating.
const maxEncodedAttempts = 4096

var ErrCorruptRecord = errors.New("corrupt rate limit record")

// Encode serializes a record for durable storage. Layout (big endian):
// version byte, violation count uint32, last-violation/blocked-until/updated
// unix-nano int64s, attempt count uint16, then one int64 per attempt.
// The key is not encoded; storage layers key records externally.
func Encode(r *Record) ([]byte, error) {
	if len(r.AttemptTimestamps) > maxEncodedAttempts {
		return nil, ErrCorruptRecord
	}

	var buf bytes.Buffer
	buf.WriteByte(recordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, uint32(r.ViolationCount)); err != nil {
		return nil, err
	}
	for _, ts := range []time.Time{r.LastViolationAt, r.BlockedUntil, r.UpdatedAt} {
		if err := binary.Write(&buf, binary.BigEndian, unixNanoOrZero(ts)); err != nil {
			return nil, err
		}
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(r.AttemptTimestamps))); err != nil {
		return nil, err
	}
	for _, ts := range r.AttemptTimestamps {
		if err := binary.Write(&buf, binary.BigEndian, ts.UnixNano()); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a record previously produced by [Encode]. The caller supplies
// the key the bytes were stored under.
func Decode(key Key, data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrCorruptRecord
	}
	if version != recordVersionV1 {
		return nil, ErrCorruptRecord
	}

	r := &Record{Key: key}

	var violations uint32
	if err := binary.Read(reader, binary.BigEndian, &violations); err != nil {
		return nil, ErrCorruptRecord
	}
	r.ViolationCount = int(violations)

	var lastViolation, blockedUntil, updatedAt int64
	for _, dst := range []*int64{&lastViolation, &blockedUntil, &updatedAt} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, ErrCorruptRecord
		}
	}
	r.LastViolationAt = timeFromUnixNano(lastViolation)
	r.BlockedUntil = timeFromUnixNano(blockedUntil)
	r.UpdatedAt = timeFromUnixNano(updatedAt)

	var count uint16
	if err := binary.Read(reader, binary.BigEndian, &count); err != nil {
		return nil, ErrCorruptRecord
	}
	if int(count) > maxEncodedAttempts {
		return nil, ErrCorruptRecord
	}

	if count > 0 {
		r.AttemptTimestamps = make([]time.Time, 0, count)
		for i := 0; i < int(count); i++ {
			var nanos int64
			if err := binary.Read(reader, binary.BigEndian, &nanos); err != nil {
				return nil, ErrCorruptRecord
			}
			r.AttemptTimestamps = append(r.AttemptTimestamps, time.Unix(0, nanos))
		}
	}

	if _, err := reader.ReadByte(); err != io.EOF {
		return nil, ErrCorruptRecord
	}

	return r, nil
}

func unixNanoOrZero(ts time.Time) int64 {
	if ts.IsZero() {
		return 0
	}
	return ts.UnixNano()
}

func timeFromUnixNano(nanos int64) time.Time {
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}
