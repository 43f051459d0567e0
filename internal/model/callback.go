package model

import "fmt"

// CallbackKind tags the Callback variant.
type CallbackKind string

const (
	// CallbackManual requires a human acknowledgment.
	CallbackManual CallbackKind = "manual"
	// CallbackAutomatic is executed by the engine through the action registry.
	CallbackAutomatic CallbackKind = "automatic"
)

// Callback is a tagged variant: Manual{Text} or Automatic{Action, Params}.
type Callback struct {
	Kind   CallbackKind      `json:"kind" validate:"required,oneof=manual automatic"`
	Text   string            `json:"text,omitempty" validate:"required_if=Kind manual"`
	Action string            `json:"action,omitempty" validate:"required_if=Kind automatic"`
	Params map[string]string `json:"params,omitempty"`
}

// Manual builds a manual callback.
func Manual(text string) Callback {
	return Callback{Kind: CallbackManual, Text: text}
}

// Automatic builds an automatic callback.
func Automatic(action string, params map[string]string) Callback {
	return Callback{Kind: CallbackAutomatic, Action: action, Params: params}
}

// String renders the callback for attention listings.
func (c Callback) String() string {
	if c.Kind == CallbackManual {
		return c.Text
	}
	return fmt.Sprintf("%s%v", c.Action, c.Params)
}

// SetName names one of the three callback sets.
type SetName string

const (
	SetSuccess SetName = "on_success"
	SetFailure SetName = "on_failure"
	SetFinally SetName = "on_finally"
)

// CallbackSets holds the success, failure and finally callbacks of a goal.
type CallbackSets struct {
	OnSuccess []Callback `json:"on_success,omitempty" validate:"dive"`
	OnFailure []Callback `json:"on_failure,omitempty" validate:"dive"`
	OnFinally []Callback `json:"on_finally,omitempty" validate:"dive"`
}

// Set returns the callbacks for the named set.
func (c CallbackSets) Set(name SetName) []Callback {
	switch name {
	case SetSuccess:
		return c.OnSuccess
	case SetFailure:
		return c.OnFailure
	case SetFinally:
		return c.OnFinally
	}
	return nil
}

// Clone deep-copies the sets, including params maps.
func (c CallbackSets) Clone() CallbackSets {
	return CallbackSets{
		OnSuccess: cloneCallbacks(c.OnSuccess),
		OnFailure: cloneCallbacks(c.OnFailure),
		OnFinally: cloneCallbacks(c.OnFinally),
	}
}

func cloneCallbacks(in []Callback) []Callback {
	if in == nil {
		return nil
	}
	out := make([]Callback, len(in))
	for i, cb := range in {
		out[i] = cb
		if cb.Params != nil {
			out[i].Params = make(map[string]string, len(cb.Params))
			for k, v := range cb.Params {
				out[i].Params[k] = v
			}
		}
	}
	return out
}

// SetForOutcome maps a resolution outcome to the set it triggers besides
// on_finally. Killed goals trigger only on_finally.
func SetForOutcome(o Outcome) (SetName, bool) {
	switch o {
	case OutcomeSuccess:
		return SetSuccess, true
	case OutcomeFailure:
		return SetFailure, true
	}
	return "", false
}

// PendingAck is a manual callback awaiting acknowledgment.
type PendingAck struct {
	GoalID        string  `json:"goal_id"`
	Index         int     `json:"index"`
	Event         string  `json:"event"`
	Set           SetName `json:"set"`
	CallbackIndex int     `json:"callback_index"`
	Text          string  `json:"text"`

	// Blocking acks hold the goal in pending-finalization.
	Blocking     bool `json:"blocking"`
	Acknowledged bool `json:"acknowledged"`
}

// ActionResult is the machine-readable outcome of an automatic callback.
type ActionResult struct {
	GoalID string            `json:"goal_id"`
	Event  string            `json:"event"`
	Set    SetName           `json:"set"`
	Index  int               `json:"index"`
	Action string            `json:"action"`
	Data   map[string]string `json:"data,omitempty"`
	Replay bool              `json:"replay,omitempty"`
}
