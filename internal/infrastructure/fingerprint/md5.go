package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const readChunkSize = 4096

// MD5 fingerprints byte streams in fixed 4 KiB reads so large uploads are
// never held in memory.
type MD5 struct{}

func NewMD5() MD5 {
	return MD5{}
}

func (MD5) Fingerprint(r io.Reader) (string, error) {
	h := md5.New()
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = h.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read for fingerprint: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
