package functions

import (
	"encoding/json"
	"fmt"

	"github.com/aschepis/backscratcher/converse/llm"
)

// Kinds reported in the content of failed function-result messages.
const (
	KindInvalid = "invalid"
	KindThrew   = "threw"
)

type failure struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// ResultMessage renders a dispatch result as the function-role message that is
// fed back to the model. A success carries the JSON of the returned value; a
// failure carries {"error": ..., "kind": "invalid"|"threw"}.
func ResultMessage(call llm.FunctionCall, result Result) llm.Message {
	content := Match(result,
		func(r Invalid) string {
			return encodeFailure(r.Message, KindInvalid)
		},
		func(r Succeeded) string {
			data, err := json.Marshal(r.Value)
			if err != nil {
				return encodeFailure(fmt.Sprintf("result of %s could not be encoded: %v", call.Name, err), KindThrew)
			}
			return string(data)
		},
		func(r Threw) string {
			msg := "function failed"
			if r.Err != nil {
				msg = r.Err.Error()
			}
			return encodeFailure(msg, KindThrew)
		},
	)
	return llm.NewFunctionResultMessage(call.Name, content)
}

func encodeFailure(message, kind string) string {
	data, _ := json.Marshal(failure{Error: message, Kind: kind})
	return string(data)
}
