package store

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/PeaPodTechnologies/LabelledSet/store/internal"
)

type storeConditionKey string
type ifMatch string
type ifNoneMatch struct{}

const (
	condKey     = storeConditionKey("condition")
	absentKey   = storeConditionKey("absent")
	etagVersion = 1
)

type cacheETagToken struct {
	Format    int32
	Version   int64
	UpdatedAt int64
}

func getETag(cc internal.VersionContainer[Metadata]) string {
	token := cacheETagToken{
		Format:    etagVersion,
		Version:   cc.Version,
		UpdatedAt: cc.Meta.UpdatedAt.Unix(),
	}
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, token)
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func decodeETag(etag string) (cacheETagToken, error) {
	out, err := base64.StdEncoding.DecodeString(etag)
	if err != nil {
		return cacheETagToken{}, fmt.Errorf("invalid ETag: %s", err)
	}
	buf := bytes.NewReader(out)
	var container cacheETagToken
	if err := binary.Read(buf, binary.LittleEndian, &container); err != nil {
		return container, fmt.Errorf("invalid ETag: %s", err)
	}
	if container.Format != etagVersion {
		return container, fmt.Errorf("invalid ETag: unknown format %d", container.Format)
	}
	return container, nil
}

// WithIfMatch returns a new context loaded with an ETag for an If-Match
// conditional. Assign and Drop fail with a version mismatch when the group
// changed since the ETag was issued.
func WithIfMatch(ctx context.Context, etag string) context.Context {
	return context.WithValue(ctx, condKey, ifMatch(etag))
}

// WithIfNoneMatch returns a new context that makes Assign fail when the
// group already exists.
func WithIfNoneMatch(ctx context.Context) context.Context {
	return context.WithValue(ctx, absentKey, ifNoneMatch{})
}

func getConditionals(ctx context.Context) ([]internal.Cond[Metadata], error) {
	var conds []internal.Cond[Metadata]
	if _, ok := ctx.Value(absentKey).(ifNoneMatch); ok {
		conds = append(conds, internal.WhenNotExists[Metadata]())
	}
	etag, ok := ctx.Value(condKey).(ifMatch)
	if !ok {
		return conds, nil
	}
	token, err := decodeETag(string(etag))
	if err != nil {
		return nil, err
	}
	return append(conds, internal.WhenVersionMatches[Metadata](token.Version)), nil
}
