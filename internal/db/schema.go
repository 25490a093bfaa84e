package db

import (
	"strings"
)

const (
	historyTable    = "WuHistory"
	versionTable    = "DbVersion"
	naturalKeyIndex = "idx_wuhistory_natural_key"
)

// CurrentVersion is stamped into stores written in the current shape.
const CurrentVersion = "0.9.2"

type shape int

const (
	shapeNone shape = iota
	shapeLegacy
	shapeCurrent
)

func (s shape) String() string {
	switch s {
	case shapeLegacy:
		return "legacy"
	case shapeCurrent:
		return "current"
	default:
		return "none"
	}
}

type column struct {
	name string
	decl string
	// legacy is the expression read from a legacy table when copying.
	legacy string
}

// legacyColumnCount is the width of the original table. Every current column
// past it carries a DEFAULT.
const legacyColumnCount = 15

var currentColumns = []column{
	{"ID", "INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT", "ID"},
	{"ProjectID", "INT NOT NULL", "COALESCE(ProjectID, 0)"},
	{"ProjectRun", "INT NOT NULL", "COALESCE(ProjectRun, 0)"},
	{"ProjectClone", "INT NOT NULL", "COALESCE(ProjectClone, 0)"},
	{"ProjectGen", "INT NOT NULL", "COALESCE(ProjectGen, 0)"},
	{"Name", "VARCHAR(60) NOT NULL", "COALESCE(InstanceName, '')"},
	{"Path", "VARCHAR(260) NOT NULL", "COALESCE(InstancePath, '')"},
	{"Username", "VARCHAR(60) NOT NULL", "COALESCE(Username, '')"},
	{"Team", "INT NOT NULL", "COALESCE(Team, 0)"},
	{"CoreVersion", "FLOAT NOT NULL", "COALESCE(CoreVersion, 0)"},
	{"FramesCompleted", "INT NOT NULL", "COALESCE(FramesCompleted, 0)"},
	{"FrameTime", "INT NOT NULL", "COALESCE(FrameTime, 0)"},
	{"Result", "INT NOT NULL", "COALESCE(Result, 0)"},
	{"Assigned", "DATETIME NOT NULL", "COALESCE(strftime('%Y-%m-%d %H:%M:%S', DownloadDateTime), '0001-01-01 00:00:00')"},
	{"Finished", "DATETIME NOT NULL", "COALESCE(strftime('%Y-%m-%d %H:%M:%S', CompletionDateTime), '0001-01-01 00:00:00')"},
	{"WorkUnitName", "VARCHAR(30) NOT NULL DEFAULT ''", ""},
	{"KFactor", "FLOAT NOT NULL DEFAULT 0", ""},
	{"Core", "VARCHAR(20) NOT NULL DEFAULT ''", ""},
	{"Frames", "INT NOT NULL DEFAULT 0", ""},
	{"Atoms", "INT NOT NULL DEFAULT 0", ""},
	{"Credit", "FLOAT NOT NULL DEFAULT 0", ""},
	{"PreferredDays", "FLOAT NOT NULL DEFAULT 0", ""},
	{"MaximumDays", "FLOAT NOT NULL DEFAULT 0", ""},
}

var legacyColumns = []string{
	"ID",
	"ProjectID",
	"ProjectRun",
	"ProjectClone",
	"ProjectGen",
	"InstanceName",
	"InstancePath",
	"Username",
	"Team",
	"CoreVersion",
	"FramesCompleted",
	"FrameTime",
	"Result",
	"DownloadDateTime",
	"CompletionDateTime",
}

// LegacyTableDDL is the table shape written by releases before CurrentVersion.
const LegacyTableDDL = `CREATE TABLE [WuHistory] (
  [ID] INTEGER PRIMARY KEY AUTOINCREMENT,
  [ProjectID] INT NOT NULL,
  [ProjectRun] INT NOT NULL,
  [ProjectClone] INT NOT NULL,
  [ProjectGen] INT NOT NULL,
  [InstanceName] VARCHAR(30) NOT NULL,
  [InstancePath] VARCHAR(260) NOT NULL,
  [Username] VARCHAR(30) NOT NULL,
  [Team] INT NOT NULL,
  [CoreVersion] FLOAT NOT NULL,
  [FramesCompleted] INT NOT NULL,
  [FrameTime] INT NOT NULL,
  [Result] INT NOT NULL,
  [DownloadDateTime] DATETIME NOT NULL,
  [CompletionDateTime] DATETIME NOT NULL
);`

const versionTableDDL = `CREATE TABLE IF NOT EXISTS [DbVersion] (
  [ID] INTEGER PRIMARY KEY AUTOINCREMENT,
  [Version] VARCHAR(20) NOT NULL
);`

func historyTableDDL(table string) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE [" + table + "] (\n")
	for i, c := range currentColumns {
		b.WriteString("  [" + c.name + "] " + c.decl)
		if i < len(currentColumns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(");")
	return b.String()
}

const naturalKeyIndexDDL = `CREATE UNIQUE INDEX IF NOT EXISTS [idx_wuhistory_natural_key]
  ON [WuHistory] ([ProjectID], [ProjectRun], [ProjectClone], [ProjectGen], [Assigned]);`

// dedupSQL keeps the lowest ID for every natural key.
const dedupSQL = `DELETE FROM [WuHistory] WHERE [ID] NOT IN (
  SELECT MIN([ID]) FROM [WuHistory]
  GROUP BY [ProjectID], [ProjectRun], [ProjectClone], [ProjectGen], [Assigned]
);`

// copyLegacySQL moves legacy rows into the new table. Columns introduced by
// the current shape are left to their defaults. Timestamps are rewritten in
// TimeLayout so that keys differing only in text form collapse in dedupSQL.
func copyLegacySQL(dst string) string {
	names := make([]string, 0, legacyColumnCount)
	exprs := make([]string, 0, legacyColumnCount)
	for _, c := range currentColumns[:legacyColumnCount] {
		names = append(names, "["+c.name+"]")
		exprs = append(exprs, c.legacy)
	}
	return "INSERT INTO [" + dst + "] (" + strings.Join(names, ", ") + ")\nSELECT " +
		strings.Join(exprs, ", ") + " FROM [" + historyTable + "] ORDER BY [ID];"
}

func currentColumnNames() []string {
	out := make([]string, len(currentColumns))
	for i, c := range currentColumns {
		out[i] = c.name
	}
	return out
}

// selectSQL returns the history projection for s including the computed
// SlotType, so that filters can address every Column.
func selectSQL(s shape) string {
	if s == shapeLegacy {
		return `SELECT * FROM (SELECT [ID], [ProjectID], [ProjectRun], [ProjectClone], [ProjectGen],
  [InstanceName] AS [Name], [InstancePath] AS [Path], [Username], [Team], [CoreVersion],
  [FramesCompleted], [FrameTime], [Result], [DownloadDateTime] AS [Assigned], [CompletionDateTime] AS [Finished],
  '' AS [WorkUnitName], 0 AS [KFactor], '' AS [Core], 0 AS [Frames], 0 AS [Atoms], 0 AS [Credit],
  0 AS [PreferredDays], 0 AS [MaximumDays], 'Unknown' AS [SlotType]
  FROM [WuHistory])`
	}
	return `SELECT * FROM (SELECT ` + quoteAll(currentColumnNames()) + `, slot_type([Core]) AS [SlotType] FROM [WuHistory])`
}

func insertSQL(s shape) string {
	if s == shapeLegacy {
		return `INSERT INTO [WuHistory] (` + quoteAll(legacyColumns[1:]) + `) VALUES (` + placeholders(len(legacyColumns)-1) + `)`
	}
	return `INSERT INTO [WuHistory] (` + quoteAll(currentColumnNames()[1:]) + `) VALUES (` + placeholders(len(currentColumns)-1) + `)`
}

func existsSQL(s shape) string {
	assigned := "[Assigned]"
	if s == shapeLegacy {
		assigned = "[DownloadDateTime]"
	}
	return `SELECT COUNT(*) FROM [WuHistory] WHERE [ProjectID] = ? AND [ProjectRun] = ? AND [ProjectClone] = ? AND [ProjectGen] = ? AND ` + assigned + ` = ?`
}

func quoteAll(names []string) string {
	q := make([]string, len(names))
	for i, n := range names {
		q[i] = "[" + n + "]"
	}
	return strings.Join(q, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func sameColumns(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if !strings.EqualFold(got[i], want[i]) {
			return false
		}
	}
	return true
}
