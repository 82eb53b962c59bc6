//go:build !unix && !windows

package elevate

func native() PrivilegeProvider {
	return None{}
}
