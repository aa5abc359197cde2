package queue

import "encoding/json"

// Serializer converts entities and stored items to and from the store's
// value type. The default is JSON; producers may supply their own as long
// as both sides of the queue agree.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONSerializer is the default Serializer.
type JSONSerializer struct{}

func (JSONSerializer) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONSerializer) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
