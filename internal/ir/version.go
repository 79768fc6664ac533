package ir

// EngineVersion is the strata engine version, reported by `strata --version`.
const EngineVersion = "0.1.0"
