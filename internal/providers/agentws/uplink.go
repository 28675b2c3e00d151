package agentws

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gorilla/websocket"

	"voicedesk/internal/domain"
	"voicedesk/internal/ports"
)

// pumpUplink copies captured PCM to the agent as binary frames until the
// capture ends or the call closes.
func pumpUplink(audio ports.AudioSession, send func(outbound) bool, chunkSize int) error {
	if chunkSize < 256 {
		chunkSize = defaultChunkSize
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if !send(outbound{kind: websocket.BinaryMessage, payload: chunk}) {
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("%w: audio capture: %w", domain.ErrDevice, err)
		}
	}
}
