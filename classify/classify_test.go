package classify

import (
	"testing"

	"github.com/creativeprojects/imapfilter/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSet(t *testing.T, whitelist, blacklist, graylist, folders []string) *rules.Set {
	t.Helper()
	set := &rules.Set{
		SpamFolder: "Spam",
		GrayFolder: "Gray",
		DropFolder: "Spam",
		Self:       []string{"me@example.com"},
	}
	var err error
	set.Whitelist, err = rules.Compile(whitelist)
	require.NoError(t, err)
	set.Blacklist, err = rules.Compile(blacklist)
	require.NoError(t, err)
	set.Graylist, err = rules.Compile(graylist)
	require.NoError(t, err)
	set.Folders, err = rules.CompileFolders(folders)
	require.NoError(t, err)
	return set
}

func classifyRaw(raw string, set *rules.Set) Verdict {
	header := ParseHeader([]byte(raw))
	return Classify(header, header.Sender, set)
}

func TestWhitelistWinsOverBlacklist(t *testing.T) {
	set := newSet(t, []string{"alice@example.com"}, []string{"viagra"}, nil, nil)
	verdict := classifyRaw("From: alice@example.com\r\nSubject: buy viagra\r\nDate: Mon, 1 Jan 2024 10:00:00 +0000\r\n", set)

	assert.Equal(t, Keep, verdict.Action)
	assert.Equal(t, byte(CodeHam), verdict.Code)
	assert.True(t, verdict.Flags.Has(IsHam))
	assert.True(t, verdict.Flags.Has(IsSpam))
	assert.Equal(t, "alice@example.com", verdict.Rule.Pattern)
}

func TestMissingDateIsSpam(t *testing.T) {
	set := newSet(t, []string{"alice@example.com"}, []string{"viagra"}, nil, nil)
	verdict := classifyRaw("From: bob@spam.net\r\nSubject: buy viagra\r\n", set)

	assert.Equal(t, MarkReadAndMove, verdict.Action)
	assert.Equal(t, "Spam", verdict.Folder)
	assert.Equal(t, byte(CodeSpam), verdict.Code)
	assert.Equal(t, "F---S--", verdict.Flags.String())
}

func TestPrecedence(t *testing.T) {
	set := newSet(t,
		[]string{"friend@example.com"},
		[]string{"casino", "+^subject:.*lottery"},
		[]string{"newsletter@shop.com"},
		[]string{"golang-nuts=+Lists.Go", "boss@work.com=Work", "family=inbox"},
	)
	const date = "Date: Mon, 1 Jan 2024 10:00:00 +0000\r\n"

	fixtures := []struct {
		name   string
		raw    string
		action Action
		folder string
		code   byte
	}{
		{"graylist before whitelist", "From: newsletter@shop.com\r\nTo: friend@example.com\r\n" + date, MarkReadAndMove, "Gray", CodeIgnored},
		{"whitelist on To", "From: stranger@nowhere.org\r\nTo: friend@example.com\r\nSubject: casino\r\n" + date, Keep, "", CodeHam},
		{"blacklist on subject regex", "From: stranger@nowhere.org\r\nSubject: you won the lottery\r\n" + date, MarkReadAndMove, "Spam", CodeSpam},
		{"blacklist on from", "From: casino@vegas.com\r\n" + date, MarkReadAndMove, "Spam", CodeSpam},
		{"no from", "Subject: hello\r\n" + date, MarkReadAndMove, "Spam", CodeSpam},
		{"forged self address", "From: Me <me@example.com>\r\nSubject: hello\r\n" + date, MarkReadAndMove, "Spam", CodeSpam},
		{"folder rule with mark read", "From: someone@example.org\r\nList-Post: <mailto:golang-nuts@googlegroups.com>\r\n" + date, MarkReadAndMove, "Lists.Go", CodeFiltered},
		{"folder rule", "From: boss@work.com\r\n" + date, Move, "Work", CodeFiltered},
		{"folder rule to inbox", "From: family@home.net\r\n" + date, Keep, "", CodeDefault},
		{"whitelisted with folder rule", "From: boss@work.com\r\nCc: friend@example.com\r\n" + date, Move, "Work", CodeFiltered},
		{"default", "From: someone@example.org\r\nSubject: hello\r\n" + date, Keep, "", CodeDefault},
	}

	for _, fixture := range fixtures {
		t.Run(fixture.name, func(t *testing.T) {
			verdict := classifyRaw(fixture.raw, set)
			assert.Equal(t, fixture.action, verdict.Action, verdict.String())
			assert.Equal(t, fixture.folder, verdict.Folder)
			assert.Equal(t, string(fixture.code), string(verdict.Code))
		})
	}
}

func TestSubjectMatchingBlacklistSkipsFolderRule(t *testing.T) {
	set := newSet(t, nil, []string{"casino"}, nil, []string{"casino=Games"})
	verdict := classifyRaw("From: a@b.org\r\nSubject: casino night\r\nDate: Mon, 1 Jan 2024 10:00:00 +0000\r\n", set)
	assert.Equal(t, "Spam", verdict.Folder)
}

func TestFirstFolderRuleWins(t *testing.T) {
	set := newSet(t, nil, nil, nil, []string{"alpha=First", "beta=Second"})
	verdict := classifyRaw("To: beta@example.com\r\nFrom: alpha@example.com\r\nDate: Mon, 1 Jan 2024 10:00:00 +0000\r\n", set)
	assert.Equal(t, "Second", verdict.Folder)
}

func TestRiskyAttachment(t *testing.T) {
	const raw = "From: a@b.org\r\nDate: Mon, 1 Jan 2024 10:00:00 +0000\r\nContent-Type: application/zip; name=\"invoice.zip\"\r\n"

	set := newSet(t, nil, nil, nil, nil)
	verdict := classifyRaw(raw, set)
	assert.Equal(t, Keep, verdict.Action)
	assert.False(t, verdict.Flags.Has(Attachment))

	set.DropAttachments = true
	verdict = classifyRaw(raw, set)
	assert.Equal(t, MarkReadAndMove, verdict.Action)
	assert.Equal(t, "Spam", verdict.Folder)
	assert.Equal(t, string(CodeDropped), string(verdict.Code))

	set.DropFolder = ""
	verdict = classifyRaw(raw, set)
	assert.Equal(t, Delete, verdict.Action)
}

func TestBoundaryIsNotAnAttachment(t *testing.T) {
	const raw = "From: a@b.org\r\nDate: Mon, 1 Jan 2024 10:00:00 +0000\r\n" +
		"Content-Type: multipart/alternative; boundary=\"Apple-Mail=_7ZB3C1A2\"\r\n"

	set := newSet(t, nil, nil, nil, nil)
	set.DropAttachments = true
	set.DropFolder = ""
	verdict := classifyRaw(raw, set)
	assert.Equal(t, Keep, verdict.Action)
	assert.False(t, verdict.Flags.Has(Attachment))
}

func TestRiskyContentType(t *testing.T) {
	testData := []struct {
		value string
		risky bool
	}{
		{"text/plain; charset=utf-8", false},
		{"multipart/mixed; boundary=\"----=_Part_rar_zip_7z\"", false},
		{"application/zip", true},
		{"application/x-7z-compressed", true},
		{"application/vnd.rar", true},
		{"application/octet-stream; name=\"data.bin\"", true},
		{"application/vnd.ms-word.document.macroEnabled.12", true},
		{"application/pdf; name=\"report.docm\"", true},
		{"application/pdf; name=\"archive.zip.pdf\"", false},
		{"application/zip; name", true},
		{"", false},
	}
	for _, testItem := range testData {
		t.Run(testItem.value, func(t *testing.T) {
			assert.Equal(t, testItem.risky, riskyAttachment(testItem.value))
		})
	}
}

func TestNoSpamFolderKeepsMessage(t *testing.T) {
	set := newSet(t, nil, []string{"casino"}, nil, nil)
	set.SpamFolder = ""
	verdict := classifyRaw("From: casino@vegas.com\r\nDate: Mon, 1 Jan 2024 10:00:00 +0000\r\n", set)
	assert.Equal(t, Keep, verdict.Action)
	assert.False(t, verdict.Mutates())
}

func TestNilRuleSet(t *testing.T) {
	verdict := Classify(ParseHeader([]byte("From: a@b.org\r\nDate: today\r\n")), "a@b.org", nil)
	assert.Equal(t, Keep, verdict.Action)
	assert.Equal(t, "FD-----", verdict.Flags.String())
}

func TestVerdictString(t *testing.T) {
	rule, err := rules.New("casino")
	require.NoError(t, err)
	verdict := Verdict{Action: MarkReadAndMove, Folder: "Spam", Code: CodeSpam, Flags: SawFrom | IsSpam, Rule: rule, Reason: "blacklist"}
	assert.Equal(t, `S F---S-- read+move Spam (blacklist "casino")`, verdict.String())
}
