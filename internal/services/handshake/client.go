package handshake

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/mcoot/tabletop/internal/dependencies/random"
	"github.com/mcoot/tabletop/internal/services/cipher"
)

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Send performs the client side of the handshake: it seals req, writes it as
// one frame and reads exactly one response. If conn supports deadlines the
// context deadline is applied to both.
func Send(ctx context.Context, conn io.ReadWriter, req Request) (*Response, error) {
	return send(ctx, conn, req, random.New())
}

func send(ctx context.Context, conn io.ReadWriter, req Request, rnd random.Random) (*Response, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	key, err := requestKey(req, rnd)
	if err != nil {
		return nil, err
	}
	sealed, err := key.Seal(req.plaintext(), rnd)
	if err != nil {
		return nil, fmt.Errorf("seal request: %w", err)
	}

	if d, ok := conn.(deadliner); ok {
		if deadline, ok := ctx.Deadline(); ok {
			if err := d.SetDeadline(deadline); err != nil {
				return nil, &TransportError{Op: "deadline", Err: err}
			}
			defer func() { _ = d.SetDeadline(time.Time{}) }()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := WriteFrame(conn, sealed); err != nil {
		return nil, err
	}
	payload, err := ReadFrame(conn)
	if err != nil {
		return nil, err
	}
	return decodeResponse(payload)
}

func requestKey(req Request, rnd random.Random) (cipher.Key, error) {
	if len(req.Salt) > 0 {
		return cipher.DeriveKey(req.Secret, req.Salt), nil
	}
	return cipher.NewKey(req.Secret, rnd)
}
