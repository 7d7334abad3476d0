package history

// #region step
// Step is one observed (action, symbol) pair.
type Step struct {
	Action int `json:"action" yaml:"action"`
	Symbol int `json:"symbol" yaml:"symbol"`
}

// #endregion step

// #region key
// Key identifies a trailing context: the current action followed by the most
// recent steps, newest first. Keys are compared for exact equality only.
type Key string

// #endregion key
