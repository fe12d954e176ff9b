package resource

// RealtimeEventResource wraps a delivery topic payload for websocket
// clients of the realtime bridge.
type RealtimeEventResource struct {
	Topic string      `json:"topic"`
	Data  interface{} `json:"data"`
}

func NewRealtimeEvent(topic string, data interface{}) *RealtimeEventResource {
	return &RealtimeEventResource{
		Topic: topic,
		Data:  data,
	}
}
