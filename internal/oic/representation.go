package oic

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// SwitchValue is the property holding a binary switch state.
const SwitchValue = "value"

// common properties that are not resource values
var metaProperties = map[string]bool{
	"rt": true,
	"if": true,
	"n":  true,
	"id": true,
}

var repDecMode, _ = cbor.DecOptions{
	DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
}.DecMode()

// Representation is the decoded body of a single resource.
type Representation map[string]interface{}

// DecodeRepresentation decodes a CBOR map. An empty payload yields an
// empty representation.
func DecodeRepresentation(payload []byte) (Representation, error) {
	rep := Representation{}
	if len(payload) == 0 {
		return rep, nil
	}
	if err := repDecMode.Unmarshal(payload, &rep); err != nil {
		return nil, fmt.Errorf("failed to decode representation: %w", err)
	}
	return rep, nil
}

// Keys returns the value property names in order, skipping rt, if, n and id.
func (r Representation) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		if !metaProperties[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Switch returns the state of a binary switch.
func (r Representation) Switch() (bool, bool) {
	on, ok := r[SwitchValue].(bool)
	return on, ok
}

// EncodeSwitch builds the PUT body turning a binary switch on or off.
func EncodeSwitch(on bool) ([]byte, error) {
	data, err := cbor.Marshal(map[string]bool{SwitchValue: on})
	if err != nil {
		return nil, fmt.Errorf("failed to encode switch state: %w", err)
	}
	return data, nil
}
