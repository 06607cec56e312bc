package common

import (
	"os"
	"reflect"
	"testing"
)

var cpuParseTests = []struct {
	line         string // input
	expected     []int  // expected result
	expectedCode ErrorCode
}{
	{"", []int{}, -1},
	{"1-5", []int{1, 2, 3, 4, 5}, -1},
	{"1,10-13,9", []int{1, 10, 11, 12, 13, 9}, -1},
	{"10-14,13-15", []int{10, 11, 12, 13, 14, 13, 14, 15}, -1},
	{"1-3,6-", []int{1, 2, 3}, ParseCPUListErr},
	{"-1", []int{}, ParseCPUListErr},
	{"10-6", []int{}, InvalidCPURangeErr},
	{"1-3,10-6", []int{1, 2, 3}, InvalidCPURangeErr},
}

func TestParseCPUs(t *testing.T) {
	for _, tt := range cpuParseTests {
		actual, err := parseCPUs(tt.line)
		if code := GetNFErrorCode(err); code != tt.expectedCode {
			t.Errorf("parseCPUs(\"%s\"): unexpected error:\ngot: %v,\nwant code: %v\n", tt.line, err, tt.expectedCode)
			continue
		}
		if !reflect.DeepEqual(actual, tt.expected) {
			t.Errorf("parseCPUs(\"%s\"): got %v, want %v", tt.line, actual, tt.expected)
		}
	}
}

var removeDuplicatesTests = []struct {
	cpus     []int
	expected []int
}{
	{[]int{}, []int{}},
	{[]int{1, 2, 100, 100, 2, 100}, []int{1, 2, 100}},
	{[]int{1, 2, 100, 3}, []int{1, 2, 100, 3}},
	{[]int{1, 2, 1, 100, 100, 3}, []int{1, 2, 100, 3}},
}

func TestRemoveDuplicates(t *testing.T) {
	for _, tt := range removeDuplicatesTests {
		actual := removeDuplicates(tt.cpus)
		if !reflect.DeepEqual(actual, tt.expected) {
			t.Errorf("removeDuplicates(\"%v\"): got %v, want %v", tt.cpus, actual, tt.expected)
		}
	}
}

func TestParseCPUsTruncates(t *testing.T) {
	cpus, err := ParseCPUs("0,0,0", 1)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cpus, []int{0}) {
		t.Errorf("got %v, want [0]", cpus)
	}
	if _, err := ParseCPUs("100000", 4); GetNFErrorCode(err) != MaxCPUExceedErr {
		t.Errorf("expected MaxCPUExceedErr, got %v", err)
	}
}

var setBitsTests = []struct {
	mask     uint64
	expected []int
}{
	{0, []int{}},
	{0x1, []int{0}},
	{0x80000001, []int{0, 31}},
	{0xa, []int{1, 3}},
	{1 << 63, []int{63}},
}

func TestSetBits(t *testing.T) {
	for _, tt := range setBitsTests {
		actual := SetBits(tt.mask)
		if !reflect.DeepEqual(actual, tt.expected) {
			t.Errorf("SetBits(%#x): got %v, want %v", tt.mask, actual, tt.expected)
		}
	}
}

func TestParseMask(t *testing.T) {
	for s, want := range map[string]uint64{"0x1": 1, "3": 3, "0b101": 5, "0xffffffff": 0xffffffff} {
		got, err := ParseMask(s, 32)
		if err != nil || got != want {
			t.Errorf("ParseMask(%q) = %v, %v; want %v", s, got, err, want)
		}
	}
	if _, err := ParseMask("0x100000000", 32); GetNFErrorCode(err) != BadArgument {
		t.Errorf("expected BadArgument for overflowing mask, got %v", err)
	}
}

func TestParseLogType(t *testing.T) {
	lt, err := ParseLogType("init,verbose")
	if err != nil {
		t.Fatal(err)
	}
	if lt != No|Initialization|Verbose {
		t.Errorf("got %v", lt)
	}
	if _, err := ParseLogType("loud"); GetNFErrorCode(err) != BadArgument {
		t.Errorf("expected BadArgument, got %v", err)
	}
}

func TestLogFatalExits(t *testing.T) {
	code := 0
	exit = func(c int) { code = c }
	defer func() { exit = os.Exit }()
	LogFatalf(No, "fatal %d", 1)
	if code != 1 {
		t.Errorf("LogFatal exit code %d, want 1", code)
	}
}
