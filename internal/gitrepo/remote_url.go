package gitrepo

import (
	"fmt"
	"strings"
)

const (
	sshProtocolPrefixConstant           = "ssh://"
	sshUserDelimiterConstant            = "@"
	sshPathDelimiterConstant            = ":"
	httpsProtocolPrefixConstant         = "https://"
	gitUserPrefixConstant               = "git@"
	pathSeparatorConstant               = "/"
	gitSuffixConstant                   = ".git"
	branchSuffixSeparatorConstant       = "-"
	sshRemoteTemplateConstant           = "git@%s:%s/%s"
	httpsRemoteTemplateConstant         = "https://%s/%s/%s"
	remoteURLParseErrorTemplateConstant = "%s: %s"
	invalidRemoteURLMessageConstant     = "invalid remote url"
	unknownProtocolMessageConstant      = "unsupported remote protocol"
	requiredValueMessageConstant        = "value required"
)

// RemoteProtocol enumerates supported git remote protocols.
type RemoteProtocol string

// Supported remote protocols.
const (
	RemoteProtocolSSH   RemoteProtocol = RemoteProtocol("ssh")
	RemoteProtocolHTTPS RemoteProtocol = RemoteProtocol("https")
)

// RemoteURL represents a structured git remote URL.
type RemoteURL struct {
	Protocol   RemoteProtocol
	Host       string
	Owner      string
	Repository string
}

// RemoteURLParseError indicates a remote string could not be parsed.
type RemoteURLParseError struct {
	Input   string
	Message string
}

// Error describes the parse failure.
func (parseError RemoteURLParseError) Error() string {
	return fmt.Sprintf(remoteURLParseErrorTemplateConstant, parseError.Input, parseError.Message)
}

// UnsupportedProtocolError indicates the provided protocol cannot be formatted.
type UnsupportedProtocolError struct {
	Protocol RemoteProtocol
}

// Error describes the unsupported protocol.
func (protocolError UnsupportedProtocolError) Error() string {
	return fmt.Sprintf(remoteURLParseErrorTemplateConstant, protocolError.Protocol, unknownProtocolMessageConstant)
}

// ParseRemoteURL converts a textual remote URL into a structured representation.
func ParseRemoteURL(remote string) (RemoteURL, error) {
	trimmedRemote := strings.TrimSpace(remote)
	if len(trimmedRemote) == 0 {
		return RemoteURL{}, RemoteURLParseError{Input: remote, Message: requiredValueMessageConstant}
	}

	if strings.HasPrefix(trimmedRemote, sshProtocolPrefixConstant) {
		return parseSSHRemote(strings.TrimPrefix(trimmedRemote, sshProtocolPrefixConstant))
	}
	if strings.HasPrefix(trimmedRemote, gitUserPrefixConstant) {
		return parseSSHRemote(trimmedRemote)
	}
	if strings.HasPrefix(trimmedRemote, httpsProtocolPrefixConstant) {
		return parseHTTPSRemote(strings.TrimPrefix(trimmedRemote, httpsProtocolPrefixConstant))
	}

	return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
}

// FormatRemoteURL renders the structured remote using the requested protocol.
func FormatRemoteURL(remote RemoteURL, protocol RemoteProtocol) (string, error) {
	switch protocol {
	case RemoteProtocolSSH:
		return fmt.Sprintf(sshRemoteTemplateConstant, remote.Host, remote.Owner, remote.Repository), nil
	case RemoteProtocolHTTPS:
		return fmt.Sprintf(httpsRemoteTemplateConstant, remote.Host, remote.Owner, remote.Repository), nil
	default:
		return "", UnsupportedProtocolError{Protocol: protocol}
	}
}

// RewriteToSSH converts HTTPS remote locations into key-authenticated SSH remotes.
//
// Remotes that already use SSH, or that cannot be parsed, are returned verbatim
// so that the caller never loses the original location.
func RewriteToSSH(remote string) string {
	parsedRemote, parseError := ParseRemoteURL(remote)
	if parseError != nil || parsedRemote.Protocol != RemoteProtocolHTTPS {
		return remote
	}
	formattedRemote, formatError := FormatRemoteURL(parsedRemote, RemoteProtocolSSH)
	if formatError != nil {
		return remote
	}
	return formattedRemote
}

// LocalDirectoryName derives the deterministic cache directory name for a remote.
//
// The last path segment of the remote is used with any .git suffix stripped;
// when a branch is pinned the branch name is appended so that multiple branches
// of the same repository can coexist in the cache.
func LocalDirectoryName(remote string, branch string) string {
	trimmedRemote := strings.TrimRight(strings.TrimSpace(remote), pathSeparatorConstant)
	lastSegment := trimmedRemote
	if separatorIndex := strings.LastIndex(trimmedRemote, pathSeparatorConstant); separatorIndex >= 0 {
		lastSegment = trimmedRemote[separatorIndex+1:]
	}
	if colonIndex := strings.LastIndex(lastSegment, sshPathDelimiterConstant); colonIndex >= 0 {
		lastSegment = lastSegment[colonIndex+1:]
	}
	lastSegment = strings.TrimSuffix(lastSegment, gitSuffixConstant)

	trimmedBranch := strings.TrimSpace(branch)
	if len(trimmedBranch) == 0 {
		return lastSegment
	}
	return lastSegment + branchSuffixSeparatorConstant + trimmedBranch
}

func parseSSHRemote(remote string) (RemoteURL, error) {
	userSplitIndex := strings.Index(remote, sshUserDelimiterConstant)
	if userSplitIndex == -1 {
		return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
	}
	hostAndPath := remote[userSplitIndex+1:]

	var host string
	var path string
	pathSplitIndex := strings.Index(hostAndPath, sshPathDelimiterConstant)
	if pathSplitIndex == -1 {
		slashIndex := strings.Index(hostAndPath, pathSeparatorConstant)
		if slashIndex == -1 {
			return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
		}
		host = hostAndPath[:slashIndex]
		path = hostAndPath[slashIndex+1:]
	} else {
		host = hostAndPath[:pathSplitIndex]
		path = hostAndPath[pathSplitIndex+1:]
	}

	owner, repository, parseError := splitOwnerAndRepository(remote, path)
	if parseError != nil {
		return RemoteURL{}, parseError
	}
	return RemoteURL{Protocol: RemoteProtocolSSH, Host: host, Owner: owner, Repository: repository}, nil
}

func parseHTTPSRemote(remote string) (RemoteURL, error) {
	slashIndex := strings.Index(remote, pathSeparatorConstant)
	if slashIndex == -1 {
		return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
	}
	host := remote[:slashIndex]
	path := remote[slashIndex+1:]

	owner, repository, parseError := splitOwnerAndRepository(remote, path)
	if parseError != nil {
		return RemoteURL{}, parseError
	}
	return RemoteURL{Protocol: RemoteProtocolHTTPS, Host: host, Owner: owner, Repository: repository}, nil
}

func splitOwnerAndRepository(input string, path string) (string, string, error) {
	trimmedPath := strings.TrimSuffix(strings.TrimRight(path, pathSeparatorConstant), gitSuffixConstant)
	pathSegments := strings.Split(trimmedPath, pathSeparatorConstant)
	if len(pathSegments) < 2 {
		return "", "", RemoteURLParseError{Input: input, Message: invalidRemoteURLMessageConstant}
	}
	repository := pathSegments[len(pathSegments)-1]
	owner := strings.Join(pathSegments[:len(pathSegments)-1], pathSeparatorConstant)
	if len(owner) == 0 || len(repository) == 0 {
		return "", "", RemoteURLParseError{Input: input, Message: invalidRemoteURLMessageConstant}
	}
	return owner, repository, nil
}
