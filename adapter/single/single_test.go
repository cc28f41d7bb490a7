package single

import (
	"context"
	"errors"
	"testing"

	assert_ "github.com/stretchr/testify/assert"

	"uvp"
	"uvp/adapter/direct"
)

func TestFetch(t *testing.T) {
	assert := assert_.New(t)

	resolvers := &uvp.ResolverRegistry{}
	resolvers.MustAdd(direct.NewConfig().Resolver())
	a := New(resolvers)

	feed := uvp.FeedSource{
		Kind:       uvp.FeedKindSingle,
		Descriptor: "https://example.org/talk.mp4",
		Label:      "one talk",
	}
	candidates, err := a.Fetch(context.Background(), feed, uvp.SinceHint{})
	assert.NoError(err)
	if assert.Len(candidates, 1) {
		assert.Equal("https://example.org/talk.mp4", candidates[0].SourceID)
		assert.Equal("talk", candidates[0].Title)
	}

	feed.Descriptor = "ftp://example.org/talk.mp4"
	_, err = a.Fetch(context.Background(), feed, uvp.SinceHint{})
	var ae *uvp.AdapterError
	if assert.ErrorAs(err, &ae) {
		assert.Equal(uvp.AdapterErrorParse, ae.Kind)
	}
	assert.True(errors.Is(ae.Err, uvp.ErrNoMatch))
}
