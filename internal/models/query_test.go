package models

import "testing"

func TestSearchRequest_Validate(t *testing.T) {
	tests := []struct {
		name      string
		req       *SearchRequest
		wantErr   bool
		wantLimit int
	}{
		{"empty query", &SearchRequest{Query: ""}, true, 0},
		{"valid query", &SearchRequest{Query: "hello", Limit: 5}, false, 5},
		{"sets default limit", &SearchRequest{Query: "x"}, false, 10},
		{"caps limit", &SearchRequest{Query: "x", Limit: 500}, false, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(10, 100)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.req.Limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", tt.req.Limit, tt.wantLimit)
			}
		})
	}
}
