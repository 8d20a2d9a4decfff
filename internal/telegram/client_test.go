package telegram

import (
	"testing"
	"time"

	"github.com/gotd/td/tg"
)

func TestCollectPage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		messages       []tg.MessageClass
		wantRead       int
		wantPosts      []ChannelPost
		wantNewest     int
		wantNextOffset int
	}{
		{
			name:           "empty page ends the walk",
			messages:       nil,
			wantRead:       0,
			wantPosts:      nil,
			wantNewest:     0,
			wantNextOffset: 0,
		},
		{
			name: "text messages become posts",
			messages: []tg.MessageClass{
				&tg.Message{ID: 30, Message: "newest", Date: 1700000200},
				&tg.Message{ID: 20, Message: "older", Date: 1700000100},
			},
			wantRead: 2,
			wantPosts: []ChannelPost{
				{MessageID: 30, Text: "newest", PostedAt: time.Unix(1700000200, 0).UTC()},
				{MessageID: 20, Text: "older", PostedAt: time.Unix(1700000100, 0).UTC()},
			},
			wantNewest:     30,
			wantNextOffset: 20,
		},
		{
			name: "empty text and service messages are read but not stored",
			messages: []tg.MessageClass{
				&tg.Message{ID: 12, Message: "kept", Date: 1700000300},
				&tg.Message{ID: 11, Message: "", Date: 1700000200}, // media-only post
				&tg.MessageService{ID: 10},
			},
			wantRead: 3,
			wantPosts: []ChannelPost{
				{MessageID: 12, Text: "kept", PostedAt: time.Unix(1700000300, 0).UTC()},
			},
			wantNewest:     12,
			wantNextOffset: 10,
		},
		{
			name: "page with no storable posts still advances the offset",
			messages: []tg.MessageClass{
				&tg.MessageService{ID: 7},
				&tg.MessageEmpty{ID: 5},
			},
			wantRead:       2,
			wantPosts:      nil,
			wantNewest:     7,
			wantNextOffset: 5,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			page := collectPage(tc.messages)

			if page.Read != tc.wantRead {
				t.Errorf("Read = %d, want %d", page.Read, tc.wantRead)
			}
			if page.NewestMessageID != tc.wantNewest {
				t.Errorf("NewestMessageID = %d, want %d", page.NewestMessageID, tc.wantNewest)
			}
			if page.NextOffsetID != tc.wantNextOffset {
				t.Errorf("NextOffsetID = %d, want %d", page.NextOffsetID, tc.wantNextOffset)
			}
			if len(page.Posts) != len(tc.wantPosts) {
				t.Fatalf("Posts = %+v, want %+v", page.Posts, tc.wantPosts)
			}
			for i := range tc.wantPosts {
				if page.Posts[i] != tc.wantPosts[i] {
					t.Errorf("Posts[%d] = %+v, want %+v", i, page.Posts[i], tc.wantPosts[i])
				}
			}
		})
	}
}

func TestExtractMessages(t *testing.T) {
	t.Parallel()

	msgs := []tg.MessageClass{&tg.Message{ID: 1, Message: "a"}}

	tests := []struct {
		name    string
		res     tg.MessagesMessagesClass
		wantLen int
		wantErr bool
	}{
		{name: "channel messages", res: &tg.MessagesChannelMessages{Messages: msgs}, wantLen: 1},
		{name: "messages slice", res: &tg.MessagesMessagesSlice{Messages: msgs}, wantLen: 1},
		{name: "plain messages", res: &tg.MessagesMessages{Messages: msgs}, wantLen: 1},
		{name: "not modified is an error", res: &tg.MessagesMessagesNotModified{}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := extractMessages(tc.res)
			if (err != nil) != tc.wantErr {
				t.Fatalf("extractMessages() error = %v, wantErr %v", err, tc.wantErr)
			}
			if !tc.wantErr && len(got) != tc.wantLen {
				t.Errorf("extractMessages() returned %d messages, want %d", len(got), tc.wantLen)
			}
		})
	}
}

func TestChannelMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		channel  *tg.Channel
		username string
		want     bool
	}{
		{
			name:     "main username case insensitive",
			channel:  &tg.Channel{Username: "SomeChannel"},
			username: "somechannel",
			want:     true,
		},
		{
			name: "active collective username with empty main field",
			channel: &tg.Channel{Usernames: []tg.Username{
				{Username: "otherhandle", Active: true},
				{Username: "somechannel", Active: true},
			}},
			username: "somechannel",
			want:     true,
		},
		{
			name: "inactive collective username does not match",
			channel: &tg.Channel{Usernames: []tg.Username{
				{Username: "somechannel", Active: false},
			}},
			username: "somechannel",
			want:     false,
		},
		{
			name:     "no usernames at all",
			channel:  &tg.Channel{},
			username: "somechannel",
			want:     false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := channelMatches(tc.channel, tc.username); got != tc.want {
				t.Errorf("channelMatches() = %v, want %v", got, tc.want)
			}
		})
	}
}
