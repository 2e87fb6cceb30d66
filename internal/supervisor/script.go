package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
)

// supervisorScriptTemplate is the on-failure restart loop materialized per
// runtime. Arguments, in order: $1=log_path $2=audit_path $3=runtime_name
// $4=executable, $5...=forwarded args. It restarts the child on non-zero
// exit with doubling backoff capped at 30s, and forwards TERM/INT to the
// child before exiting cleanly.
const supervisorScriptTemplate = `#!/bin/sh
set -u
LOG_PATH="$1"; shift
AUDIT_PATH="$1"; shift
RUNTIME_NAME="$1"; shift
EXECUTABLE="$1"; shift

BACKOFF=1
CHILD_PID=""

cleanup() {
  if [ -n "$CHILD_PID" ]; then
    kill -TERM "$CHILD_PID" 2>/dev/null
    sleep 2
    kill -KILL "$CHILD_PID" 2>/dev/null
  fi
  exit 0
}
trap cleanup TERM INT

while true; do
  "$EXECUTABLE" "$@" >>"$LOG_PATH" 2>&1 &
  CHILD_PID=$!
  wait "$CHILD_PID"
  STATUS=$?
  CHILD_PID=""
  if [ "$STATUS" -eq 0 ]; then
    exit 0
  fi
  NOW_MS=$(( $(date +%s) * 1000 ))
  printf '%s\truntime.crash\t%s\t%s\n' "$NOW_MS" "$RUNTIME_NAME" "supervisor" >>"$AUDIT_PATH"
  printf '%s\truntime.restart\t%s\t%s\n' "$NOW_MS" "$RUNTIME_NAME" "supervisor" >>"$AUDIT_PATH"
  sleep "$BACKOFF"
  BACKOFF=$(( BACKOFF * 2 ))
  if [ "$BACKOFF" -gt 30 ]; then
    BACKOFF=30
  fi
done
`

// materializeSupervisorScript writes the restart-loop script for runtimeName
// under run/<runtime>.supervisor.sh and returns its path.
func (s *Supervisor) materializeSupervisorScript(runtimeName string) (string, error) {
	path := filepath.Join(s.RunDir(), runtimeName+".supervisor.sh")
	if err := os.WriteFile(path, []byte(supervisorScriptTemplate), 0755); err != nil {
		return "", fmt.Errorf("materialize supervisor script: %w", err)
	}
	return path, nil
}
