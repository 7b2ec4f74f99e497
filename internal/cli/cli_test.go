package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dsrb/rebuildd/pkg/types"
)

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "rebuildctl", cmd.Use)

	commands := cmd.Commands()
	assert.Len(t, commands, 3, "Should have 3 subcommands")

	commandNames := make(map[string]bool)
	for _, c := range commands {
		commandNames[c.Name()] = true
	}
	assert.True(t, commandNames["serve"], "Should have 'serve' command")
	assert.True(t, commandNames["schedule"], "Should have 'schedule' command")
	assert.True(t, commandNames["query"], "Should have 'query' command")
}

func TestBuildServeCommand(t *testing.T) {
	cmd := buildServeCommand()

	assert.NotNil(t, cmd)
	assert.Equal(t, "serve", cmd.Use)
	assert.NotNil(t, cmd.RunE)
}

func TestBuildScheduleCommand(t *testing.T) {
	cmd := buildScheduleCommand()

	assert.NotNil(t, cmd)
	assert.Equal(t, "schedule", cmd.Use)
	assert.NotNil(t, cmd.RunE)

	poolFlag := cmd.Flags().Lookup("pool")
	assert.NotNil(t, poolFlag, "Should have --pool flag")

	addrFlag := cmd.Flags().Lookup("addr")
	assert.NotNil(t, addrFlag)
	assert.Equal(t, "127.0.0.1:7070", addrFlag.DefValue)

	versionFlag := cmd.Flags().Lookup("version")
	assert.NotNil(t, versionFlag)
}

func TestBuildQueryCommand(t *testing.T) {
	cmd := buildQueryCommand()

	assert.NotNil(t, cmd)
	assert.Equal(t, "query", cmd.Use)
	assert.NotNil(t, cmd.RunE)

	bcastFlag := cmd.Flags().Lookup("bcast")
	assert.NotNil(t, bcastFlag, "Should have --bcast flag")
	assert.Equal(t, "false", bcastFlag.DefValue)
}

func TestParseRankList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want types.RankList
	}{
		{"empty", "", nil},
		{"whitespace only", "   ", nil},
		{"single", "3", types.RankList{3}},
		{"multiple", "1,2,3", types.RankList{1, 2, 3}},
		{"spaced", " 1 , 2 ,3 ", types.RankList{1, 2, 3}},
		{"trailing comma skipped", "1,2,", types.RankList{1, 2}},
		{"non-numeric entries skipped", "1,x,2", types.RankList{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseRankList(tt.in)
			if tt.want == nil {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRunSchedule_InvalidPoolUUID(t *testing.T) {
	err := runSchedule("127.0.0.1:1", "not-a-uuid", 1, "", "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --pool")
}

func TestRunQuery_InvalidPoolUUID(t *testing.T) {
	err := runQuery("127.0.0.1:1", "not-a-uuid", false, "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --pool")
}
