package launch

import (
	"io"
	"os"
)

// readLogTail reads up to the last maxBytes of path. A read failure (file
// not yet created, permission race) is non-fatal: the coordinator proceeds
// with an empty tail and tries again next poll.
func readLogTail(path string, maxBytes int) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ""
	}

	size := info.Size()
	offset := int64(0)
	if size > int64(maxBytes) {
		offset = size - int64(maxBytes)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return ""
	}
	buf := make([]byte, size-offset)
	n, _ := io.ReadFull(f, buf)
	return string(buf[:n])
}
