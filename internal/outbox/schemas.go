package outbox

const workoutLoggedSchema = `{
  "type": "object",
  "title": "WorkoutLogged",
  "properties": {
    "workout_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "team_id": {"type": "string"},
    "workout_type": {"type": "string"},
    "started_at": {"type": "string", "format": "date-time"},
    "duration_min": {"type": "integer", "minimum": 0},
    "source": {"type": "string", "enum": ["player", "coach", "team"]},
    "entries": {"type": "integer", "minimum": 0},
    "sets": {"type": "integer", "minimum": 0},
    "volume": {"type": "number", "minimum": 0},
    "version": {"type": "string"}
  },
  "required": ["workout_id", "tenant_id", "user_id", "workout_type", "started_at", "source", "entries", "sets", "volume", "version"],
  "additionalProperties": false
}`

const workoutScoredSchema = `{
  "type": "object",
  "title": "WorkoutScored",
  "properties": {
    "workout_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "team_id": {"type": "string"},
    "started_at": {"type": "string", "format": "date-time"},
    "points": {"type": "number", "enum": [1, 2, 2.5, 3]},
    "category": {"type": "string", "enum": ["light", "moderate", "team", "intensive"]},
    "reason": {"type": "string", "enum": ["created", "backfill"]},
    "scored_at": {"type": "string", "format": "date-time"}
  },
  "required": ["workout_id", "tenant_id", "user_id", "started_at", "points", "category", "reason", "scored_at"],
  "additionalProperties": false
}`
