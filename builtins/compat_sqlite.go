package builtins

import (
	"database/sql"
	"moocore/types"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

type sqliteHandle struct {
	id           int64
	path         string
	db           *sql.DB
	lastInsertID int64
	limits       map[int64]int64
}

var sqliteState = struct {
	mu      sync.Mutex
	nextID  int64
	handles map[int64]*sqliteHandle
}{
	nextID:  1,
	handles: make(map[int64]*sqliteHandle),
}

func getSQLiteHandle(v types.Value) (*sqliteHandle, types.ErrorCode) {
	h, ok := v.(types.IntValue)
	if !ok {
		return nil, types.E_TYPE
	}
	sqliteState.mu.Lock()
	defer sqliteState.mu.Unlock()
	handle := sqliteState.handles[h.Val]
	if handle == nil {
		return nil, types.E_INVARG
	}
	return handle, types.E_NONE
}

func builtinSqliteOpen(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	pathVal, ok := args[0].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	path, err := sanitizeFilePath(pathVal.Value())
	if err != nil {
		return types.Err(types.E_INVARG)
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return types.Err(types.E_FILE)
	}
	sqliteState.mu.Lock()
	id := sqliteState.nextID
	sqliteState.nextID++
	sqliteState.handles[id] = &sqliteHandle{id: id, path: path, db: conn, limits: make(map[int64]int64)}
	sqliteState.mu.Unlock()
	return types.Ok(types.NewInt(id))
}

func builtinSqliteClose(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	h, ok := args[0].(types.IntValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	sqliteState.mu.Lock()
	handle := sqliteState.handles[h.Val]
	if handle == nil {
		sqliteState.mu.Unlock()
		return types.Err(types.E_INVARG)
	}
	delete(sqliteState.handles, h.Val)
	sqliteState.mu.Unlock()
	if handle.db != nil {
		handle.db.Close()
	}
	return types.Ok(types.NewInt(0))
}

func builtinSqliteHandles(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 0 {
		return types.Err(types.E_ARGS)
	}
	sqliteState.mu.Lock()
	out := make([]types.Value, 0, len(sqliteState.handles))
	for id := range sqliteState.handles {
		out = append(out, types.NewInt(id))
	}
	sqliteState.mu.Unlock()
	return types.Ok(types.NewList(out))
}

func builtinSqliteInfo(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	h, code := getSQLiteHandle(args[0])
	if code != types.E_NONE {
		return types.Err(code)
	}
	return types.Ok(types.NewMap([][2]types.Value{
		{types.NewStr("path"), types.NewStr(h.path)},
		{types.NewStr("last_insert_row_id"), types.NewInt(h.lastInsertID)},
	}))
}

func sqlParams(list types.ListValue) []any {
	elems := list.Elements()
	out := make([]any, len(elems))
	for i, e := range elems {
		switch v := e.(type) {
		case types.IntValue:
			out[i] = v.Val
		case types.FloatValue:
			out[i] = v.Val
		case types.StrValue:
			out[i] = v.Value()
		default:
			out[i] = v.String()
		}
	}
	return out
}

func builtinSqliteQuery(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 2 || len(args) > 3 {
		return types.Err(types.E_ARGS)
	}
	h, code := getSQLiteHandle(args[0])
	if code != types.E_NONE {
		return types.Err(code)
	}
	sqlText, ok := args[1].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	var params []any
	if len(args) == 3 {
		list, ok := args[2].(types.ListValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		params = sqlParams(list)
	}

	rows, err := h.db.Query(sqlText.Value(), params...)
	if err != nil {
		return types.Err(types.E_INVARG)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return types.Err(types.E_INVARG)
	}

	var result []types.Value
	for rows.Next() {
		scanTargets := make([]any, len(cols))
		scanVals := make([]any, len(cols))
		for i := range scanTargets {
			scanTargets[i] = &scanVals[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return types.Err(types.E_INVARG)
		}
		rowVals := make([]types.Value, len(cols))
		for i, v := range scanVals {
			rowVals[i] = sqlValueToMOO(v)
		}
		result = append(result, types.NewList(rowVals))
	}
	if result == nil {
		result = []types.Value{}
	}
	return types.Ok(types.NewList(result))
}

func sqlValueToMOO(v any) types.Value {
	switch t := v.(type) {
	case nil:
		return types.NewInt(0)
	case int64:
		return types.NewInt(t)
	case float64:
		return types.NewFloat(t)
	case []byte:
		return types.NewStr(string(t))
	case string:
		return types.NewStr(t)
	default:
		return types.NewStr("")
	}
}

func builtinSqliteExecute(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 2 || len(args) > 3 {
		return types.Err(types.E_ARGS)
	}
	h, code := getSQLiteHandle(args[0])
	if code != types.E_NONE {
		return types.Err(code)
	}
	sqlText, ok := args[1].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	var params []any
	if len(args) == 3 {
		list, ok := args[2].(types.ListValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		params = sqlParams(list)
	}

	res, err := h.db.Exec(sqlText.Value(), params...)
	if err != nil {
		return types.Err(types.E_INVARG)
	}
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sqlText.Value())), "INSERT") {
		if id, err := res.LastInsertId(); err == nil {
			h.lastInsertID = id
		}
	}
	affected, _ := res.RowsAffected()
	return types.Ok(types.NewInt(affected))
}

func builtinSqliteLastInsertRowID(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	h, code := getSQLiteHandle(args[0])
	if code != types.E_NONE {
		return types.Err(code)
	}
	return types.Ok(types.NewInt(h.lastInsertID))
}

func builtinSqliteLimit(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 2 || len(args) > 3 {
		return types.Err(types.E_ARGS)
	}
	h, code := getSQLiteHandle(args[0])
	if code != types.E_NONE {
		return types.Err(code)
	}
	id, ok := args[1].(types.IntValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if len(args) == 2 {
		return types.Ok(types.NewInt(h.limits[id.Val]))
	}
	v, ok := args[2].(types.IntValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	h.limits[id.Val] = v.Val
	return types.Ok(types.NewInt(v.Val))
}

func builtinSqliteInterrupt(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	_, code := getSQLiteHandle(args[0])
	if code != types.E_NONE {
		return types.Err(code)
	}
	return types.Ok(types.NewInt(0))
}
