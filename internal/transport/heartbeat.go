package transport

import (
	"fmt"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
)

// heartBeatHeader formats a heart-beat header value in milliseconds.
func heartBeatHeader(outgoing, incoming time.Duration) string {
	return fmt.Sprintf("%d,%d", outgoing.Milliseconds(), incoming.Milliseconds())
}

// negotiateHeartBeat applies the STOMP 1.2 rules to our requested
// intervals and the server's heart-beat header. send is how often we must
// write; expect is how often the server promises to write. Zero disables
// the direction.
func negotiateHeartBeat(outgoing, incoming time.Duration, server string) (send, expect time.Duration, err error) {
	if server == "" {
		return 0, 0, nil
	}

	sx, sy, err := frame.ParseHeartBeat(server)
	if err != nil {
		return 0, 0, err
	}

	if outgoing > 0 && sy > 0 {
		send = max(outgoing, sy)
	}
	if incoming > 0 && sx > 0 {
		expect = max(incoming, sx)
	}
	return send, expect, nil
}
