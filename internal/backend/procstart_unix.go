//go:build !windows

package backend

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	gopsproc "github.com/shirou/gopsutil/v4/process"
	sysconf "github.com/tklauser/go-sysconf"
)

var errNoStartTime = errors.New("process start time unavailable")

// procStartUnix returns the start time of pid in Unix seconds.
func procStartUnix(pid int) (int64, error) {
	if pid <= 0 {
		return 0, errNoStartTime
	}
	if runtime.GOOS == "linux" {
		return linuxStartUnix(pid)
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return 0, err
	}
	ms, err := p.CreateTime()
	if err != nil {
		return 0, err
	}
	if ms <= 0 {
		return 0, errNoStartTime
	}
	return ms / 1000, nil
}

// linuxStartUnix combines field 22 of /proc/<pid>/stat (ticks since boot)
// with btime from /proc/stat.
func linuxStartUnix(pid int) (int64, error) {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return 0, err
	}
	// comm may contain spaces and parentheses; split after the last ")".
	stat := string(b)
	end := strings.LastIndex(stat, ")")
	if end < 0 {
		return 0, fmt.Errorf("malformed stat for pid %d", pid)
	}
	fields := strings.Fields(stat[end+1:])
	// fields[0] is state (field 3); starttime is field 22.
	if len(fields) < 20 {
		return 0, fmt.Errorf("short stat for pid %d", pid)
	}
	ticks, err := strconv.ParseInt(fields[19], 10, 64)
	if err != nil {
		return 0, err
	}
	btime, err := bootTime()
	if err != nil {
		return 0, err
	}
	hz, err := sysconf.Sysconf(sysconf.SC_CLK_TCK)
	if err != nil || hz <= 0 {
		hz = 100
	}
	return btime + ticks/hz, nil
}

func bootTime() (int64, error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if v, ok := strings.CutPrefix(sc.Text(), "btime "); ok {
			return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		}
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return 0, errNoStartTime
}
