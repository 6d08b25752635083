// blob.go implements the content-addressed blob encoding: a back-to-back
// stream of serialized results, optionally gzip-compressed at a
// configured level. EncodeBlob/DecodeBlob produce what
// TrainingResult.Commitment hashes and what the P2P fabric transfers by
// ticket.
package distro

import (
	"bytes"
	"errors"
	"io"

	"github.com/klauspost/compress/gzip"
)

// blobTag discriminates whether EncodeBlob applied gzip, so DecodeBlob can
// be self-describing without the caller tracking compression out of band.
type blobTag uint8

const (
	blobTagRaw  blobTag = 0
	blobTagGzip blobTag = 1
)

// EncodeBlob concatenates the marshaled form of each result and, if
// compress is true, gzips the result at level (see compress/gzip level
// constants; 0 means gzip.DefaultCompression). The one-byte tag prefix
// records which path was taken.
func EncodeBlob(results []SerializedResult, compress bool, level int) ([]byte, error) {
	var raw []byte
	for _, r := range results {
		raw = append(raw, r.Marshal()...)
	}
	if !compress {
		return append([]byte{byte(blobTagRaw)}, raw...), nil
	}
	if level == 0 {
		level = gzip.DefaultCompression
	}
	var buf bytes.Buffer
	buf.WriteByte(byte(blobTagGzip))
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ErrEmptyBlob is returned when DecodeBlob is given a buffer too short to
// contain the tag byte.
var ErrEmptyBlob = errors.New("distro: empty blob")

// DecodeBlob is the inverse of EncodeBlob: it reads the tag byte, optionally
// gunzips, then decodes a back-to-back stream of SerializedResult values
// until the buffer is exhausted.
func DecodeBlob(blob []byte) ([]SerializedResult, error) {
	if len(blob) == 0 {
		return nil, ErrEmptyBlob
	}
	tag := blobTag(blob[0])
	raw := blob[1:]
	if tag == blobTagGzip {
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		decoded, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		raw = decoded
	}

	var out []SerializedResult
	for len(raw) > 0 {
		r, n, err := UnmarshalSerializedResult(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
		raw = raw[n:]
	}
	return out, nil
}
