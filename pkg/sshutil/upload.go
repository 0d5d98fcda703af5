package sshutil

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/sftp"
	"github.com/rileyhilliard/agentdeploy/internal/errors"
)

// Upload streams a local file to remotePath over an SFTP subsystem opened
// on this connection. The remote file is created or truncated, and its
// permission bits follow the local file. Failures carry code ErrTransfer.
func (c *Client) Upload(localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrTransfer,
			fmt.Sprintf("Couldn't open %s for upload", localPath),
			"Check the file exists and is readable")
	}
	defer func() { _ = src.Close() }()

	info, err := src.Stat()
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrTransfer,
			fmt.Sprintf("Couldn't stat %s", localPath), "")
	}

	sftpClient, err := sftp.NewClient(c.Client)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrTransfer,
			fmt.Sprintf("Couldn't start SFTP on %s", c.Address),
			"Check the sftp subsystem is enabled in sshd_config")
	}
	defer func() { _ = sftpClient.Close() }()

	dst, err := sftpClient.Create(remotePath)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrTransfer,
			fmt.Sprintf("Failed to create remote file %s", remotePath),
			"Check the directory exists and the user can write to it")
	}

	n, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrTransfer,
			fmt.Sprintf("Upload to %s stopped after %d of %d bytes", remotePath, n, info.Size()),
			"Check free disk space on the remote host")
	}

	if err := sftpClient.Chmod(remotePath, info.Mode().Perm()); err != nil {
		return errors.WrapWithCode(err, errors.ErrTransfer,
			fmt.Sprintf("Failed to set permissions on %s", remotePath), "")
	}
	return nil
}
