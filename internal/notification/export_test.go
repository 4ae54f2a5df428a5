package notification

// ClassifyDialError exposes classifyDialError to external tests.
var ClassifyDialError = classifyDialError
