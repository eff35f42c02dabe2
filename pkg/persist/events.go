package persist

import "github.com/zoobzio/capitan"

// Event keys for structured logging.
var (
	KeyTable    = capitan.NewStringKey("table")
	KeyType     = capitan.NewStringKey("type")
	KeyID       = capitan.NewStringKey("id")
	KeyColumn   = capitan.NewStringKey("column")
	KeyOp       = capitan.NewStringKey("op")
	KeyError    = capitan.NewStringKey("error")
	KeyDuration = capitan.NewDurationKey("duration")
)

// Signals emitted by the saver.
var (
	MappingBuilt   = capitan.NewSignal("persist.mapping.built", "Entity mapping derived")
	EntityInserted = capitan.NewSignal("persist.entity.inserted", "Entity inserted")
	EntityUpdated  = capitan.NewSignal("persist.entity.updated", "Entity updated")
	SaveFailed     = capitan.NewSignal("persist.save.failed", "Entity save failed")
)
