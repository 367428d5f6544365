package api

import (
	"encoding/json"
	"net/http"
)

// RoomName is the relay room a course topic meets in.
func RoomName(courseID, topicID string) string {
	return "course-" + courseID + "-topic-" + topicID
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
