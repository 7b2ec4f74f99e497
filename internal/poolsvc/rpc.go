package poolsvc

// RequestVoteArgs is the RequestVote RPC's arguments.
type RequestVoteArgs struct {
	Term         int64
	CandidateID  string
	LastLogIndex int64
	LastLogTerm  int64
}

// RequestVoteReply is the RequestVote RPC's reply.
type RequestVoteReply struct {
	Term        int64
	VoteGranted bool
}

// RequestVote handles an incoming vote request.
func (rf *Raft) RequestVote(args *RequestVoteArgs, reply *RequestVoteReply) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if args.Term < rf.currentTerm {
		reply.Term = rf.currentTerm
		reply.VoteGranted = false
		return
	}
	if args.Term > rf.currentTerm {
		rf.currentTerm = args.Term
		rf.state = Follower
		rf.votedFor = ""
	}
	reply.Term = rf.currentTerm

	canVote := rf.votedFor == "" || rf.votedFor == args.CandidateID
	lastIndex, _ := rf.logStore.LastIndex()
	lastEntry, _ := rf.logStore.GetLog(lastIndex)
	var lastTerm int64
	if lastEntry != nil {
		lastTerm = lastEntry.Term
	}
	upToDate := args.LastLogTerm > lastTerm || (args.LastLogTerm == lastTerm && args.LastLogIndex >= lastIndex)

	if canVote && upToDate {
		rf.votedFor = args.CandidateID
		reply.VoteGranted = true
		rf.resetElectionTimer()
	} else {
		reply.VoteGranted = false
	}
}

// AppendEntriesArgs is the AppendEntries RPC's arguments (also used as the
// heartbeat when Entries is empty).
type AppendEntriesArgs struct {
	Term         int64
	LeaderID     string
	PrevLogIndex int64
	PrevLogTerm  int64
	Entries      []LogEntry
	LeaderCommit int64
}

// AppendEntriesReply is the AppendEntries RPC's reply.
type AppendEntriesReply struct {
	Term    int64
	Success bool
}

// AppendEntries handles an incoming heartbeat/log-replication request.
func (rf *Raft) AppendEntries(args *AppendEntriesArgs, reply *AppendEntriesReply) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	reply.Term = rf.currentTerm
	reply.Success = false

	if args.Term < rf.currentTerm {
		return
	}
	if args.Term > rf.currentTerm {
		rf.convertToFollower(args.Term)
	}
	rf.resetElectionTimer()
	rf.leaderID = args.LeaderID

	lastIndex, _ := rf.logStore.LastIndex()
	if args.PrevLogIndex > lastIndex {
		return
	}
	if args.PrevLogIndex >= 0 {
		if prevEntry, err := rf.logStore.GetLog(args.PrevLogIndex); err == nil && prevEntry.Term != args.PrevLogTerm {
			return
		}
	}

	for i, entry := range args.Entries {
		if entry.Index <= lastIndex {
			if existing, err := rf.logStore.GetLog(entry.Index); err == nil {
				if existing.Term == entry.Term {
					continue
				}
				_ = rf.logStore.DeleteRange(entry.Index, lastIndex)
				lastIndex = entry.Index - 1
			}
		}
		_ = rf.logStore.StoreLogs(pointersOf(args.Entries[i:]))
		break
	}

	if args.LeaderCommit > rf.commitIndex {
		newLastIndex, _ := rf.logStore.LastIndex()
		if args.LeaderCommit < newLastIndex {
			rf.commitIndex = args.LeaderCommit
		} else {
			rf.commitIndex = newLastIndex
		}
		go rf.applyLogs()
	}

	reply.Success = true
}

func pointersOf(entries []LogEntry) []*LogEntry {
	out := make([]*LogEntry, len(entries))
	for i := range entries {
		out[i] = &entries[i]
	}
	return out
}
