package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/harrylevesque/firenet/internal/models"
)

// wireStatus keeps every field raw so each can be decoded leniently.
type wireStatus struct {
	Username     json.RawMessage `json:"username"`
	UsedTraffic  json.RawMessage `json:"used_traffic"`
	DataLimit    json.RawMessage `json:"data_limit"`
	Expire       json.RawMessage `json:"expire"`
	Status       json.RawMessage `json:"status"`
	Links        json.RawMessage `json:"links"`
	NeedToUpdate json.RawMessage `json:"need_to_update"`
	IsIgnoreable json.RawMessage `json:"is_ignoreable"`
	UpdateLink   json.RawMessage `json:"update_link"`
}

// ParseStatus decodes a status body. Booleans may be native or "true"/"false"
// strings, numbers may be native or numeric strings, and null means absent.
func ParseStatus(body []byte) (*models.AccountStatus, error) {
	var w wireStatus
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("%w: status: %v", ErrMalformedResponse, err)
	}
	s := &models.AccountStatus{
		UsedTraffic:      int64Value(w.UsedTraffic),
		DataLimit:        int64Value(w.DataLimit),
		ExpireAt:         int64Value(w.Expire),
		StatusLabel:      stringValue(w.Status),
		AccessLinks:      linksValue(w.Links),
		UpdateRequired:   boolValue(w.NeedToUpdate),
		UpdateIsOptional: boolValue(w.IsIgnoreable),
		UpdateLink:       stringValue(w.UpdateLink),
	}
	if u := stringValue(w.Username); u != nil {
		s.Username = *u
	}
	return s, nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// stringValue returns a JSON string as-is and any other scalar as its text.
func stringValue(raw json.RawMessage) *string {
	if isAbsent(raw) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}
	text := string(bytes.TrimSpace(raw))
	return &text
}

func int64Value(raw json.RawMessage) *int64 {
	if isAbsent(raw) {
		return nil
	}
	text := string(bytes.TrimSpace(raw))
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		text = strings.TrimSpace(s)
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return &n
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		n := int64(f)
		return &n
	}
	return nil
}

// boolValue accepts native booleans and the strings "true"/"false" in any case.
// Any other present value reads as false.
func boolValue(raw json.RawMessage) *bool {
	if isAbsent(raw) {
		return nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return &b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		b = strings.EqualFold(strings.TrimSpace(s), "true")
		return &b
	}
	return &b
}

func linksValue(raw json.RawMessage) []string {
	if isAbsent(raw) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	links := make([]string, 0, len(items))
	for _, item := range items {
		if s := stringValue(item); s != nil {
			links = append(links, *s)
		} else {
			links = append(links, "")
		}
	}
	return links
}
