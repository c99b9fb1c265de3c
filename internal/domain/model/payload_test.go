package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload_AllTypes(t *testing.T) {
	tests := []struct {
		name    string
		jobType JobType
		raw     string
		want    Payload
	}{
		{
			name:    "init_session",
			jobType: JobTypeInitSession,
			raw:     `{"account_id":"acc-1","session_id":"sess-1","profile_id":"prof-1"}`,
			want:    &InitSessionPayload{AccountID: "acc-1", SessionID: "sess-1", ProfileID: "prof-1"},
		},
		{
			name:    "verify_session",
			jobType: JobTypeVerifySession,
			raw:     `{"session_id":"sess-2"}`,
			want:    &VerifySessionPayload{SessionID: "sess-2"},
		},
		{
			name:    "create_post",
			jobType: JobTypeCreatePost,
			raw:     `{"boards":[{"cafe_id":"c1","board_id":"b1"}],"title":"hello","body":"world","trade":{"price":5000,"product_name":"lamp"}}`,
			want: &CreatePostPayload{
				Boards: []BoardRef{{CafeID: "c1", BoardID: "b1"}},
				Title:  "hello",
				Body:   "world",
				Trade:  &TradeMeta{Price: 5000, ProductName: "lamp"},
			},
		},
		{
			name:    "sync_posts",
			jobType: JobTypeSyncPosts,
			raw:     `{"cafe_id":"c1","board_id":"b1"}`,
			want:    &SyncPostsPayload{CafeID: "c1", BoardID: "b1"},
		},
		{
			name:    "delete_post",
			jobType: JobTypeDeletePost,
			raw:     `{"cafe_id":"c1","article_id":"a9"}`,
			want:    &DeletePostPayload{CafeID: "c1", ArticleID: "a9"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePayload(tt.jobType, json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, got.Validate())
		})
	}
}

func TestDecodePayload_UnknownType(t *testing.T) {
	_, err := DecodePayload(JobType("reboot_cafe"), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no payload decoder")
}

func TestDecodePayload_MalformedJSON(t *testing.T) {
	_, err := DecodePayload(JobTypeCreatePost, json.RawMessage(`{"title":`))
	require.Error(t, err)
}

func TestPayloadValidate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		wantMsg string
	}{
		{"init missing account", &InitSessionPayload{SessionID: "s", ProfileID: "p"}, "account_id"},
		{"init missing profile", &InitSessionPayload{AccountID: "a", SessionID: "s"}, "profile_id"},
		{"verify missing session", &VerifySessionPayload{}, "session_id"},
		{"create without boards", &CreatePostPayload{Title: "t", Body: "b"}, "board"},
		{
			"create with blank board ref",
			&CreatePostPayload{Boards: []BoardRef{{CafeID: "c1"}}, Title: "t", Body: "b"},
			"boards[0]",
		},
		{
			"create with whitespace title",
			&CreatePostPayload{Boards: []BoardRef{{CafeID: "c", BoardID: "b"}}, Title: "   ", Body: "b"},
			"title",
		},
		{"sync missing cafe", &SyncPostsPayload{BoardID: "b"}, "cafe_id"},
		{"delete missing article", &DeletePostPayload{CafeID: "c"}, "article_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestJobTypeUnmarshalText(t *testing.T) {
	var jt JobType
	require.NoError(t, jt.UnmarshalText([]byte("create_post")))
	assert.Equal(t, JobTypeCreatePost, jt)

	require.Error(t, jt.UnmarshalText([]byte("explode")))
}
