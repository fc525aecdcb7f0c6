package device

import (
	"bufio"
	"fmt"
)

// listen reads one receiver line, terminator included. The downstream
// parser splits and validates sentences; this stage only moves bytes.
func listen(reader *bufio.Reader) ([]byte, error) {
	v, err := reader.ReadBytes(0x0D)
	if err != nil {
		return nil, err
	}
	if len(v) <= 0 {
		return nil, fmt.Errorf("empty frame")
	}
	return v, nil
}
