package store

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"
)

type cacheContinueToken struct {
	// Nonce present only to make forging continue tokens inconvenient so that
	// they may remain opaque for future store implementations. Not a security
	// measure.
	Nonce  int64
	Offset int32
}

func decodeCacheContinue(token string) (int, error) {
	out, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("invalid continue token: %s", err)
	}
	var container cacheContinueToken
	if err := binary.Read(bytes.NewReader(out), binary.LittleEndian, &container); err != nil {
		return 0, fmt.Errorf("invalid continue token: %s", err)
	}
	if container.Offset < 0 {
		return 0, fmt.Errorf("invalid continue token: negative offset %d", container.Offset)
	}
	return int(container.Offset), nil
}

func encodeCacheContinue(offset int) string {
	token := cacheContinueToken{
		Nonce:  time.Now().UnixNano(),
		Offset: int32(offset),
	}
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, token)
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}
