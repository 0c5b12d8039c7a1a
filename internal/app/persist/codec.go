package persist

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"

	"github.com/cockroachdb/errors"

	"resono/internal/domain/track"
)

// Snapshot wire format: 4-byte magic, 1-byte version, 1-byte record type,
// then length-prefixed fields. Versioned explicitly so cross-version
// compatibility stays auditable.
const (
	codecVersion = 1

	recordQueue   = 0x01
	recordAutomix = 0x02
	recordPlayer  = 0x03
)

var magic = []byte("RSNO")

// Errors
var (
	ErrBadSnapshot        = errors.New("malformed snapshot")
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
)

// binWriter accumulates length-prefixed big-endian fields.
type binWriter struct {
	buf bytes.Buffer
}

func newBinWriter(recordType byte) *binWriter {
	w := &binWriter{}
	w.buf.Write(magic)
	w.buf.WriteByte(codecVersion)
	w.buf.WriteByte(recordType)
	return w
}

func (w *binWriter) bytes() []byte { return w.buf.Bytes() }

func (w *binWriter) u8(v byte)  { w.buf.WriteByte(v) }
func (w *binWriter) boolean(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *binWriter) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *binWriter) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *binWriter) i64(v int64)     { w.u64(uint64(v)) }
func (w *binWriter) f64(v float64)   { w.u64(math.Float64bits(v)) }
func (w *binWriter) str(s string) {
	w.u32(uint32(len(s)))
	w.buf.WriteString(s)
}

// binReader consumes fields, carrying the first error forward.
type binReader struct {
	data []byte
	pos  int
	err  error
}

// newBinReader validates the header and positions past it.
func newBinReader(data []byte, recordType byte) (*binReader, error) {
	if len(data) < len(magic)+2 {
		return nil, errors.Wrap(ErrBadSnapshot, "truncated header")
	}
	if !bytes.Equal(data[:len(magic)], magic) {
		return nil, errors.Wrap(ErrBadSnapshot, "bad magic")
	}
	if data[len(magic)] != codecVersion {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "version %d", data[len(magic)])
	}
	if data[len(magic)+1] != recordType {
		return nil, errors.Wrapf(ErrBadSnapshot, "unexpected record type %#x", data[len(magic)+1])
	}
	return &binReader{data: data, pos: len(magic) + 2}, nil
}

func (r *binReader) fail() {
	if r.err == nil {
		r.err = errors.Wrap(ErrBadSnapshot, "truncated field")
	}
}

func (r *binReader) take(n int) []byte {
	if r.err != nil || r.pos+n > len(r.data) {
		r.fail()
		return nil
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out
}

func (r *binReader) u8() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *binReader) boolean() bool { return r.u8() == 1 }

func (r *binReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *binReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *binReader) i64() int64   { return int64(r.u64()) }
func (r *binReader) f64() float64 { return math.Float64frombits(r.u64()) }

func (r *binReader) str() string {
	n := int(r.u32())
	if r.err != nil || n > len(r.data)-r.pos {
		r.fail()
		return ""
	}
	return string(r.take(n))
}

func writeItem(w *binWriter, item track.QueueItem) {
	w.str(string(item.Track.ID))
	w.str(item.Track.Title)
	w.u32(uint32(len(item.Track.Artists)))
	for _, a := range item.Track.Artists {
		w.str(a)
	}
	w.str(item.Track.Album)
	w.str(item.Track.AlbumArtURL)
	w.i64(item.Track.Duration.Milliseconds())
	w.boolean(item.Track.Explicit)
	w.boolean(item.Track.IsVideo)
	w.str(string(item.Source))
	w.i64(item.AddedAt.UnixMilli())
}

func readItem(r *binReader) track.QueueItem {
	var item track.QueueItem
	item.Track.ID = track.ID(r.str())
	item.Track.Title = r.str()
	artistCount := int(r.u32())
	if r.err == nil && artistCount > 0 && artistCount <= len(r.data) {
		item.Track.Artists = make([]string, 0, artistCount)
		for i := 0; i < artistCount; i++ {
			item.Track.Artists = append(item.Track.Artists, r.str())
		}
	} else if artistCount > len(r.data) {
		r.fail()
	}
	item.Track.Album = r.str()
	item.Track.AlbumArtURL = r.str()
	item.Track.Duration = time.Duration(r.i64()) * time.Millisecond
	item.Track.Explicit = r.boolean()
	item.Track.IsVideo = r.boolean()
	item.Source = track.Source(r.str())
	item.AddedAt = time.UnixMilli(r.i64()).UTC()
	return item
}

func writeItems(w *binWriter, items []track.QueueItem) {
	w.u32(uint32(len(items)))
	for _, item := range items {
		writeItem(w, item)
	}
}

func readItems(r *binReader) []track.QueueItem {
	count := int(r.u32())
	if r.err != nil || count > len(r.data) {
		r.fail()
		return nil
	}
	items := make([]track.QueueItem, 0, count)
	for i := 0; i < count; i++ {
		items = append(items, readItem(r))
	}
	return items
}

// EncodeQueue serializes a queue snapshot.
func EncodeQueue(s QueueSnapshot) []byte {
	w := newBinWriter(recordQueue)
	writeItems(w, s.Items)
	w.u32(uint32(s.Current))
	w.boolean(s.Shuffled)
	w.u8(byte(s.Repeat))
	w.boolean(s.HasPages)
	return w.bytes()
}

// DecodeQueue deserializes a queue snapshot.
func DecodeQueue(data []byte) (QueueSnapshot, error) {
	r, err := newBinReader(data, recordQueue)
	if err != nil {
		return QueueSnapshot{}, err
	}

	var s QueueSnapshot
	s.Items = readItems(r)
	s.Current = int(r.u32())
	s.Shuffled = r.boolean()
	s.Repeat = int(r.u8())
	s.HasPages = r.boolean()
	if r.err != nil {
		return QueueSnapshot{}, r.err
	}
	return s, nil
}

// EncodeAutomix serializes an automix buffer snapshot.
func EncodeAutomix(s AutomixSnapshot) []byte {
	w := newBinWriter(recordAutomix)
	writeItems(w, s.Items)
	return w.bytes()
}

// DecodeAutomix deserializes an automix buffer snapshot.
func DecodeAutomix(data []byte) (AutomixSnapshot, error) {
	r, err := newBinReader(data, recordAutomix)
	if err != nil {
		return AutomixSnapshot{}, err
	}

	var s AutomixSnapshot
	s.Items = readItems(r)
	if r.err != nil {
		return AutomixSnapshot{}, r.err
	}
	return s, nil
}

// EncodePlayer serializes a player state snapshot.
func EncodePlayer(s PlayerSnapshot) []byte {
	w := newBinWriter(recordPlayer)
	w.str(string(s.TrackID))
	w.i64(s.PositionMs)
	w.f64(s.Volume)
	w.u8(byte(s.Repeat))
	w.boolean(s.Shuffled)
	w.boolean(s.Playing)
	return w.bytes()
}

// DecodePlayer deserializes a player state snapshot.
func DecodePlayer(data []byte) (PlayerSnapshot, error) {
	r, err := newBinReader(data, recordPlayer)
	if err != nil {
		return PlayerSnapshot{}, err
	}

	var s PlayerSnapshot
	s.TrackID = track.ID(r.str())
	s.PositionMs = r.i64()
	s.Volume = r.f64()
	s.Repeat = int(r.u8())
	s.Shuffled = r.boolean()
	s.Playing = r.boolean()
	if r.err != nil {
		return PlayerSnapshot{}, r.err
	}
	return s, nil
}
